// Debounced edit-to-render session
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"incremental-photo-engine/internal/imaging"
	"incremental-photo-engine/internal/params"
)

// DefaultDebounce is the coalescing window for rapid edits.
const DefaultDebounce = 200 * time.Millisecond

// Session turns a stream of parameter edits into engine renders.
// Rapid Submit calls coalesce so only the latest snapshot renders; a
// newer edit cancels the in-flight render for a superseded snapshot
// and its result is discarded instead of arriving out of order.
type Session struct {
	mu          sync.Mutex
	engine      *Engine
	log         *slog.Logger
	debounce    time.Duration
	previewEdge int

	onPreview func(*Result)
	onError   func(error)

	input *imaging.Buffer
	mask  *imaging.Buffer

	pending *params.Params
	timer   *time.Timer
	cancel  context.CancelFunc
	gen     uint64
	wg      sync.WaitGroup
	closed  bool
}

// NewSession wraps engine with a debounced edit queue. previewEdge
// bounds the longer edge of the working image; zero keeps sources at
// native resolution.
func NewSession(engine *Engine, debounce time.Duration, previewEdge int, log *slog.Logger) *Session {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		engine:      engine,
		log:         log,
		debounce:    debounce,
		previewEdge: previewEdge,
	}
}

// OnPreview registers the delivery callback. It runs on the render
// goroutine and takes ownership of Result.Output.
func (s *Session) OnPreview(fn func(*Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPreview = fn
}

// OnError registers the failure callback.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// SetSource swaps the image under edit, taking ownership of both
// buffers. The source is downscaled to the preview edge here, once,
// rather than on every render. The engine notices the swap by input
// hash and recomputes fully on the next render.
func (s *Session) SetSource(input, mask *imaging.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		input.Close()
		mask.Close()
		return errors.New("render: session closed")
	}
	working := input
	if s.previewEdge > 0 {
		scaled, err := imaging.PreviewScale(input, s.previewEdge)
		input.Close()
		if err != nil {
			mask.Close()
			return fmt.Errorf("preview scale: %w", err)
		}
		working = scaled
	}
	if s.input != nil {
		s.input.Close()
	}
	if s.mask != nil {
		s.mask.Close()
	}
	s.input = working
	s.mask = mask
	return nil
}

// Submit queues a parameter snapshot. The debounce window restarts on
// every call, so a burst of edits renders once, with the last values.
func (s *Session) Submit(p *params.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || p == nil {
		return
	}
	s.pending = p.Clone()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flush)
}

// Flush renders any pending edit immediately instead of waiting out
// the debounce window.
func (s *Session) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.flush()
}

func (s *Session) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending == nil || s.input == nil {
		return
	}
	p := s.pending
	s.pending = nil

	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.gen++
	gen := s.gen

	input := s.input.Clone()
	if input == nil {
		s.log.Warn("session source buffer no longer intact, dropping edit")
		return
	}
	var mask *imaging.Buffer
	if s.mask != nil {
		mask = s.mask.Clone()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer input.Close()
		if mask != nil {
			defer mask.Close()
		}
		res, _ := s.engine.Process(ctx, input, mask, p)

		s.mu.Lock()
		stale := gen != s.gen || s.closed
		onPreview, onError := s.onPreview, s.onError
		s.mu.Unlock()

		if stale {
			if res.Output != nil {
				res.Output.Close()
			}
			return
		}
		if !res.Success {
			if onError != nil {
				onError(res.Err)
			}
			return
		}
		if onPreview != nil {
			onPreview(res)
		} else if res.Output != nil {
			res.Output.Close()
		}
	}()
}

// Close cancels in-flight work, waits for the render goroutine to
// drain, and releases the owned buffers.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.input != nil {
		s.input.Close()
		s.input = nil
	}
	if s.mask != nil {
		s.mask.Close()
		s.mask = nil
	}
}
