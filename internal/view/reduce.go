// Package view folds document lists into display values.
//
// Reducers are pure: the same list always gives the same value, and nothing
// is cached between calls. A reducer that fails on one malformed document
// skips that document instead of blanking the whole view.
package view

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
)

// ReducerFault records a document a fold could not process.
type ReducerFault struct {
	DocumentID string
	Err        error
}

func (f *ReducerFault) Error() string {
	return fmt.Sprintf("reducer fault on document %q: %v", f.DocumentID, f.Err)
}

func (f *ReducerFault) Unwrap() error {
	return f.Err
}

// Fold combines one document into an accumulator. Returning an error (or
// panicking) marks the document as faulty; its contribution is dropped.
type Fold[T any] func(acc T, doc docstore.Document) (T, error)

// Result is the outcome of [Reduce].
type Result[T any] struct {
	Value  T
	Faults []*ReducerFault
}

// OK reports whether every document was folded.
func (r Result[T]) OK() bool {
	return len(r.Faults) == 0
}

// Err joins the faults into one error, or returns nil.
func (r Result[T]) Err() error {
	if len(r.Faults) == 0 {
		return nil
	}
	errs := make([]error, len(r.Faults))
	for i, f := range r.Faults {
		errs[i] = f
	}
	return errors.Join(errs...)
}

type config struct {
	logger *slog.Logger
}

// Option configures a reduction.
type Option func(*config)

// WithLogger sets where faults are logged. The default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newConfig(opts []Option) config {
	c := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Reduce folds docs in order starting from init. A document whose fold
// errors or panics is recorded as a [ReducerFault], logged, and skipped;
// the accumulator carries on from its value before that document.
func Reduce[T any](docs []docstore.Document, init T, fold Fold[T], opts ...Option) Result[T] {
	cfg := newConfig(opts)
	res := Result[T]{Value: init}
	for _, d := range docs {
		next, err := safeFold(fold, res.Value, d, cfg.logger)
		if err != nil {
			fault := &ReducerFault{DocumentID: d.ID, Err: err}
			cfg.logger.Warn("skipping document", "document", d.ID, "error", err)
			res.Faults = append(res.Faults, fault)
			continue
		}
		res.Value = next
	}
	return res
}

// Derive runs a whole-list reducer. If fn panics the value is unavailable:
// Derive returns the zero T and false.
func Derive[T any](docs []docstore.Document, fn func([]docstore.Document) T, opts ...Option) (value T, ok bool) {
	cfg := newConfig(opts)
	defer func() {
		if r := recover(); r != nil {
			logPanic(cfg.logger, "derive panic", "", r)
			var zero T
			value, ok = zero, false
		}
	}()
	return fn(docs), true
}

func safeFold[T any](fold Fold[T], acc T, d docstore.Document, logger *slog.Logger) (next T, err error) {
	defer func() {
		if r := recover(); r != nil {
			id := logPanic(logger, "fold panic", d.ID, r)
			err = fmt.Errorf("fold panic (correlation_id: %s)", id)
		}
	}()
	return fold(acc, d)
}

func logPanic(logger *slog.Logger, msg, docID string, r any) string {
	correlationID := uuid.NewString()
	logger.Error(msg,
		"correlation_id", correlationID,
		"document", docID,
		"panic", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()),
	)
	return correlationID
}
