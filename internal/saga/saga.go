// Package saga runs a multi-step mutation with reverse-order compensation.
//
// The store offers no cross-table transactions to the service layer, so each
// step that succeeds registers an undo. When a later step fails, the undos run
// newest first and the step's error is returned. If an undo itself fails the
// store is left inconsistent and the result is reported as such.
package saga

import (
	"context"
	"fmt"

	"dinnerparty-backend/internal/apperr"

	"github.com/rs/zerolog/log"
)

// Step is one forward action and its compensation. Undo may be nil for steps
// that need no compensation.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Saga accumulates steps for a named operation
type Saga struct {
	name  string
	steps []Step
}

// New creates an empty saga
func New(name string) *Saga {
	return &Saga{name: name}
}

// Add appends a step
func (s *Saga) Add(name string, do, undo func(ctx context.Context) error) *Saga {
	s.steps = append(s.steps, Step{Name: name, Do: do, Undo: undo})
	return s
}

// Len returns the number of steps
func (s *Saga) Len() int { return len(s.steps) }

// Run executes the steps in order. On failure it compensates completed steps
// in reverse order and returns the failing step's error, or an
// ErrPartialFailure wrapping it if any compensation failed.
func (s *Saga) Run(ctx context.Context) error {
	done := make([]Step, 0, len(s.steps))
	for _, step := range s.steps {
		if err := step.Do(ctx); err != nil {
			log.Error().
				Err(err).
				Str("saga", s.name).
				Str("step", step.Name).
				Msg("Saga step failed, compensating")

			if undoErr := compensate(ctx, s.name, done); undoErr != nil {
				return apperr.ErrPartialFailure.With(fmt.Errorf("%s: step %s: %w (compensation: %v)", s.name, step.Name, err, undoErr))
			}
			return err
		}
		done = append(done, step)
	}
	return nil
}

func compensate(ctx context.Context, name string, done []Step) error {
	var firstErr error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(ctx); err != nil {
			log.Error().
				Err(err).
				Str("saga", name).
				Str("step", step.Name).
				Msg("Compensation failed, store left inconsistent")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
