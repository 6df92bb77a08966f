// Render outcome records
package render

import (
	"time"

	"incremental-photo-engine/internal/imaging"
	"incremental-photo-engine/internal/params"
	"incremental-photo-engine/internal/stage"
)

// Plan is the work laid out by change detection before any pixels
// move: the first stage to recompute, the ordered suffix that will
// run, which of those will have outputs stored, the summed cost
// units, and the parameter names that triggered the run. A run with
// no changes carries an empty plan.
type Plan struct {
	Start   stage.Stage
	Run     []stage.Stage
	Store   []stage.Stage
	Cost    int
	Changed []string
}

func buildPlan(cs params.ChangeSet) Plan {
	pl := Plan{Changed: cs.Changed}
	if !cs.HasStart {
		return pl
	}
	pl.Start = cs.Start
	for _, s := range cs.Recompute {
		pl.Run = append(pl.Run, s)
		pl.Cost += s.Cost()
		if s.Cacheable() {
			pl.Store = append(pl.Store, s)
		}
	}
	return pl
}

// StageResult records one stage's disposition within a run. Exactly
// one of Executed, CacheHit, or Skipped is set on a healthy stage;
// Err is set on the stage that aborted the run.
type StageResult struct {
	Stage    stage.Stage
	Executed bool
	CacheHit bool
	Skipped  bool
	Elapsed  time.Duration
	Err      error
}

// Result reports one engine run: the output buffer on success, the
// failure on error, and whatever per-stage telemetry was collected
// either way. The caller owns Output and closes it.
type Result struct {
	Output         *imaging.Buffer
	Success        bool
	Plan           Plan
	Stages         []StageResult
	CacheHits      int
	CacheMisses    int
	StagesExecuted int
	StagesSkipped  int
	Elapsed        time.Duration
	Err            error
}
