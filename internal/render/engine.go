// Incremental staged rendering engine
package render

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"incremental-photo-engine/internal/adjust"
	"incremental-photo-engine/internal/imaging"
	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/rendercache"
	"incremental-photo-engine/internal/stage"
)

// Engine runs the fixed stage pipeline incrementally: change detection
// against the last rendered snapshot picks the suffix that must rerun,
// the stage cache serves unaffected cache-worthy stages, and stages at
// their defaults pass the running image through untouched. Engines are
// caller-owned values with no shared globals; multi-document callers
// and tests construct as many as they need.
type Engine struct {
	mu    sync.Mutex
	cache *rendercache.Cache
	log   *slog.Logger

	incremental bool
	useCache    bool

	lastParams    *params.Params
	lastInputHash uint64
	lastOutput    *imaging.Buffer
	hasHistory    bool
}

// New wires an engine around its own cache instance. Fails when the
// processor table is incomplete, which would otherwise surface as a
// nil dereference mid-render.
func New(cacheLimit int64, log *slog.Logger) (*Engine, error) {
	if err := adjust.Complete(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cache:       rendercache.New(cacheLimit, log),
		log:         log,
		incremental: true,
		useCache:    true,
	}, nil
}

// Cache exposes the stage cache for trim wiring and stats reporting.
func (e *Engine) Cache() *rendercache.Cache {
	return e.cache
}

// SetIncremental toggles change-detection reuse. When off, every run
// recomputes from the first stage.
func (e *Engine) SetIncremental(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.incremental = on
}

// SetCaching toggles stage-output caching.
func (e *Engine) SetCaching(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.useCache = on
}

// Reset drops render history and cached stage outputs, as on an image
// swap or an explicit revert.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastParams = nil
	e.hasHistory = false
	if e.lastOutput != nil {
		e.lastOutput.Close()
		e.lastOutput = nil
	}
	e.cache.Clear()
}

// Close releases engine-held buffers and cached entries.
func (e *Engine) Close() {
	e.Reset()
}

// Process renders input under p. History from the previous successful
// run narrows the work to the stages the edit actually touched.
func (e *Engine) Process(ctx context.Context, input, mask *imaging.Buffer, p *params.Params) (*Result, error) {
	return e.run(ctx, input, mask, p, false)
}

// ProcessFull ignores history and cache state and recomputes every
// stage from the first. Used for verification runs and for recovering
// from suspected cache corruption.
func (e *Engine) ProcessFull(ctx context.Context, input, mask *imaging.Buffer, p *params.Params) (*Result, error) {
	return e.run(ctx, input, mask, p, true)
}

func (e *Engine) run(ctx context.Context, input, mask *imaging.Buffer, p *params.Params, forceFull bool) (*Result, error) {
	start := time.Now()
	res := &Result{}
	if input == nil || !input.Valid() {
		res.Err = ErrBadInput
		return res, res.Err
	}
	if p == nil {
		res.Err = ErrNilParams
		return res, res.Err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inputHash := imaging.Fingerprint(input)
	if mask != nil && mask.Valid() {
		inputHash = imaging.Combine(inputHash, imaging.Fingerprint(mask))
	}

	// A different base image makes every cached entry meaningless.
	full := forceFull || !e.incremental || !e.hasHistory || inputHash != e.lastInputHash
	if full {
		e.cache.Clear()
	}

	var cs params.ChangeSet
	if full {
		cs = params.Detect(nil, p)
	} else {
		cs = params.Detect(e.lastParams, p)
	}
	res.Plan = buildPlan(cs)

	if !full && !cs.HasChanges {
		if out := e.serveLastLocked(); out != nil {
			res.Output = out
			res.Success = true
			res.StagesSkipped = int(stage.Count)
			res.Elapsed = time.Since(start)
			e.log.Debug("render unchanged, serving last output")
			return res, nil
		}
	}

	aux := adjust.Aux{}
	if mask != nil && mask.Valid() {
		m := mask.Mat()
		aux.Mask = &m
	}

	running := input.Clone()
	if running == nil {
		res.Err = ErrBadInput
		return res, res.Err
	}

	for s := stage.Geometry; s < stage.Count; s++ {
		if err := ctx.Err(); err != nil {
			running.Close()
			res.Err = err
			res.Elapsed = time.Since(start)
			return res, res.Err
		}

		sr := StageResult{Stage: s}
		t0 := time.Now()
		pHash := params.HashForStage(s, p)
		key := rendercache.Key{
			Stage:     s,
			ParamHash: pHash,
			InputHash: imaging.Fingerprint(running),
		}

		if !full && e.useCache && s.Cacheable() && !cs.Affects(s) {
			if buf, ok := e.cache.Get(key); ok {
				running.Close()
				running = buf
				sr.CacheHit = true
				sr.Elapsed = time.Since(t0)
				res.CacheHits++
				res.Stages = append(res.Stages, sr)
				continue
			}
			res.CacheMisses++
		}

		proc := adjust.For(s)
		if !proc.Active(p) {
			sr.Skipped = true
			sr.Elapsed = time.Since(t0)
			res.StagesSkipped++
			res.Stages = append(res.Stages, sr)
			continue
		}

		outMat, err := proc.Apply(running.Mat(), p, aux)
		if err != nil {
			outMat.Close()
			running.Close()
			sr.Err = err
			sr.Elapsed = time.Since(t0)
			res.Stages = append(res.Stages, sr)
			res.Err = &StageError{Stage: s, Err: err}
			res.Elapsed = time.Since(start)
			return res, res.Err
		}
		next, err := imaging.NewBuffer(outMat)
		if err != nil {
			outMat.Close()
			running.Close()
			sr.Err = err
			sr.Elapsed = time.Since(t0)
			res.Stages = append(res.Stages, sr)
			res.Err = &StageError{Stage: s, Err: err}
			res.Elapsed = time.Since(start)
			return res, res.Err
		}
		if s != stage.Geometry &&
			(next.Width() != running.Width() || next.Height() != running.Height()) {
			next.Close()
			running.Close()
			sr.Err = ErrDimensionDrift
			sr.Elapsed = time.Since(t0)
			res.Stages = append(res.Stages, sr)
			res.Err = &StageError{Stage: s, Err: ErrDimensionDrift}
			res.Elapsed = time.Since(start)
			return res, res.Err
		}
		running.Close()
		running = next
		sr.Executed = true
		res.StagesExecuted++

		if e.useCache && s.Cacheable() {
			if clone := running.Clone(); clone != nil {
				e.cache.Put(key, clone)
			}
		}
		sr.Elapsed = time.Since(t0)
		res.Stages = append(res.Stages, sr)
	}

	// History updates only land after a fully successful run, so a
	// failed render never poisons the next diff baseline.
	e.lastParams = p.Clone()
	e.lastInputHash = inputHash
	e.hasHistory = true
	if e.lastOutput != nil {
		e.lastOutput.Close()
	}
	e.lastOutput = running.Clone()

	res.Output = running
	res.Success = true
	res.Elapsed = time.Since(start)
	e.log.Debug("render complete",
		"planned_cost", res.Plan.Cost,
		"executed", res.StagesExecuted,
		"skipped", res.StagesSkipped,
		"cache_hits", res.CacheHits,
		"cache_misses", res.CacheMisses,
		"elapsed", res.Elapsed)
	return res, nil
}

// serveLastLocked clones the last successful output if it is intact.
func (e *Engine) serveLastLocked() *imaging.Buffer {
	if e.lastOutput == nil || !e.lastOutput.Valid() {
		return nil
	}
	return e.lastOutput.Clone()
}
