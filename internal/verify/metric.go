// Quality metrics for render verification
package verify

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Metric scores how close a candidate image sits to a reference.
type Metric interface {
	Calculate(reference, candidate gocv.Mat) (float64, error)
	GetName() string
	GetDescription() string
	GetRange() (float64, float64)
	IsHigherBetter() bool
}

// Evaluator holds the registered metrics. The incremental-vs-full
// parity check runs every registered metric over the two outputs.
type Evaluator struct {
	metrics map[string]Metric
}

func NewEvaluator() *Evaluator {
	e := &Evaluator{metrics: make(map[string]Metric)}
	e.Register("psnr", NewPSNR())
	e.Register("ssim", NewSSIM())
	e.Register("mse", NewMSE())
	return e
}

func (e *Evaluator) Register(name string, m Metric) {
	e.metrics[name] = m
}

// Calculate runs one metric by name.
func (e *Evaluator) Calculate(name string, reference, candidate gocv.Mat) (float64, error) {
	m, ok := e.metrics[name]
	if !ok {
		return 0, fmt.Errorf("verify: unknown metric %q", name)
	}
	return m.Calculate(reference, candidate)
}

// CalculateAll runs every registered metric, skipping ones that fail.
func (e *Evaluator) CalculateAll(reference, candidate gocv.Mat) map[string]float64 {
	results := make(map[string]float64, len(e.metrics))
	for name, m := range e.metrics {
		if v, err := m.Calculate(reference, candidate); err == nil {
			results[name] = v
		}
	}
	return results
}

func (e *Evaluator) CalculatePSNR(reference, candidate gocv.Mat) (float64, error) {
	return e.Calculate("psnr", reference, candidate)
}

func (e *Evaluator) CalculateSSIM(reference, candidate gocv.Mat) (float64, error) {
	return e.Calculate("ssim", reference, candidate)
}
