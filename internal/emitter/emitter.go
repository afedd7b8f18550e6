// Package emitter writes a collected report to its outputs.
package emitter

import (
	"context"
	"errors"

	"github.com/yairfalse/tally/pkg/report"
)

// Emitter outputs a finished report.
type Emitter interface {
	// Emit writes the report. A failure is fatal for the run.
	Emit(ctx context.Context, rep report.Report) error

	// Close cleans up resources.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters in order, returns first error.
func (m *MultiEmitter) Emit(ctx context.Context, rep report.Report) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, rep); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every emitter and joins their errors.
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
