// Typed failures surfaced by the rendering engine
package render

import (
	"errors"
	"fmt"

	"incremental-photo-engine/internal/stage"
)

var (
	ErrBadInput  = errors.New("render: input buffer missing or invalid")
	ErrNilParams = errors.New("render: nil parameter snapshot")

	// ErrDimensionDrift means a stage after geometry changed the buffer
	// size, breaking the contract that geometry alone sets dimensions.
	ErrDimensionDrift = errors.New("render: stage changed buffer dimensions")
)

// StageError names the stage that failed so callers can tell which
// part of the pipeline broke instead of getting a bare kernel error.
type StageError struct {
	Stage stage.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
