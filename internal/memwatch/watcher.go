// System memory pressure sampling
package memwatch

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Reducer frees memory on demand. TrimTo receives the fraction of the
// reducer's own budget to shrink to and reports bytes freed.
type Reducer interface {
	TrimTo(fraction float64) int64
}

// trimTarget matches the cache's own emergency purge target.
const trimTarget = 0.80

// Watcher samples system memory on an interval and asks registered
// reducers to shrink when usage crosses the pressure threshold.
type Watcher struct {
	interval  time.Duration
	threshold float64
	log       *slog.Logger
	sample    func() (total, avail uint64, err error)

	mu       sync.Mutex
	reducers []Reducer
}

func New(interval time.Duration, thresholdPct int, log *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if thresholdPct <= 0 || thresholdPct > 100 {
		thresholdPct = 85
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		interval:  interval,
		threshold: float64(thresholdPct) / 100,
		log:       log,
		sample:    sampleSystem,
	}
}

func (w *Watcher) Register(r Reducer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reducers = append(w.reducers, r)
}

// Run blocks until ctx is done, sampling once per interval.
func (w *Watcher) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Check()
		}
	}
}

// Check takes one sample and trims reducers synchronously when system
// usage sits at or above the threshold.
func (w *Watcher) Check() {
	total, avail, err := w.sample()
	if err != nil {
		w.log.Debug("memory sample unavailable", "err", err)
		return
	}
	if total == 0 {
		return
	}
	used := 1 - float64(avail)/float64(total)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	w.log.Debug("memory sample",
		"system_used_pct", int(used*100),
		"heap_alloc", ms.HeapAlloc,
		"heap_sys", ms.HeapSys,
		"num_gc", ms.NumGC)

	if used < w.threshold {
		return
	}
	w.mu.Lock()
	reducers := append([]Reducer(nil), w.reducers...)
	w.mu.Unlock()

	var freed int64
	for _, r := range reducers {
		freed += r.TrimTo(trimTarget)
	}
	w.log.Warn("memory pressure, trimmed caches",
		"system_used_pct", int(used*100),
		"freed_bytes", freed)
}
