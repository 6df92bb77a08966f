package memwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeReducer struct {
	calls     int
	fractions []float64
	freed     int64
}

func (f *fakeReducer) TrimTo(fraction float64) int64 {
	f.calls++
	f.fractions = append(f.fractions, fraction)
	return f.freed
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedSample(total, avail uint64) func() (uint64, uint64, error) {
	return func() (uint64, uint64, error) { return total, avail, nil }
}

func TestNewClampsArguments(t *testing.T) {
	tests := []struct {
		name          string
		interval      time.Duration
		pct           int
		wantInterval  time.Duration
		wantThreshold float64
	}{
		{"valid", 2 * time.Second, 90, 2 * time.Second, 0.90},
		{"zero interval", 0, 85, 5 * time.Second, 0.85},
		{"negative interval", -time.Second, 85, 5 * time.Second, 0.85},
		{"zero pct", time.Second, 0, time.Second, 0.85},
		{"oversize pct", time.Second, 150, time.Second, 0.85},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(tt.interval, tt.pct, quietLog())
			if w.interval != tt.wantInterval {
				t.Errorf("interval = %v, want %v", w.interval, tt.wantInterval)
			}
			if w.threshold != tt.wantThreshold {
				t.Errorf("threshold = %v, want %v", w.threshold, tt.wantThreshold)
			}
			if w.sample == nil {
				t.Error("sampler not wired")
			}
		})
	}
}

func TestCheckBelowThresholdLeavesReducersAlone(t *testing.T) {
	w := New(time.Second, 85, quietLog())
	w.sample = fixedSample(1000, 500)

	r := &fakeReducer{}
	w.Register(r)
	w.Check()
	if r.calls != 0 {
		t.Fatalf("reducer trimmed %d times at 50%% usage", r.calls)
	}
}

func TestCheckAtThresholdTrims(t *testing.T) {
	w := New(time.Second, 85, quietLog())
	w.sample = fixedSample(1000, 150)

	a := &fakeReducer{freed: 1 << 20}
	b := &fakeReducer{freed: 2 << 20}
	w.Register(a)
	w.Register(b)
	w.Check()

	for _, r := range []*fakeReducer{a, b} {
		if r.calls != 1 {
			t.Fatalf("reducer trimmed %d times, want 1", r.calls)
		}
		if r.fractions[0] != trimTarget {
			t.Fatalf("trim fraction %v, want %v", r.fractions[0], trimTarget)
		}
	}
}

func TestCheckAboveThresholdTrims(t *testing.T) {
	w := New(time.Second, 85, quietLog())
	w.sample = fixedSample(1000, 20)

	r := &fakeReducer{}
	w.Register(r)
	w.Check()
	if r.calls != 1 {
		t.Fatalf("reducer trimmed %d times at 98%% usage, want 1", r.calls)
	}
}

func TestCheckSampleErrorIsQuiet(t *testing.T) {
	w := New(time.Second, 85, quietLog())
	w.sample = func() (uint64, uint64, error) {
		return 0, 0, errors.New("no sysinfo here")
	}

	r := &fakeReducer{}
	w.Register(r)
	w.Check()
	if r.calls != 0 {
		t.Fatal("reducer trimmed on a failed sample")
	}
}

func TestCheckZeroTotalIsQuiet(t *testing.T) {
	w := New(time.Second, 85, quietLog())
	w.sample = fixedSample(0, 0)

	r := &fakeReducer{}
	w.Register(r)
	w.Check()
	if r.calls != 0 {
		t.Fatal("reducer trimmed on a zero-total sample")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	w := New(10*time.Millisecond, 1, quietLog())
	w.sample = fixedSample(1000, 10)

	r := &fakeReducer{}
	w.Register(r)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if r.calls == 0 {
		t.Fatal("ticker never fired")
	}
}
