// Package dispatch performs single document writes in response to user
// actions.
//
// A dispatch makes exactly one write attempt and reports the outcome as an
// [Ack]. It never retries and never panics. An Ack says the remote accepted
// the write; it says nothing about what any subscription currently shows.
// Views learn about the write only when their listener delivers it.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
)

// Writer is the write half of a document service.
type Writer interface {
	WriteDocument(ctx context.Context, collection, id string, patch map[string]any, merge bool) error
}

// WriterFunc adapts a function to [Writer].
type WriterFunc func(ctx context.Context, collection, id string, patch map[string]any, merge bool) error

// WriteDocument calls f.
func (f WriterFunc) WriteDocument(ctx context.Context, collection, id string, patch map[string]any, merge bool) error {
	return f(ctx, collection, id, patch, merge)
}

// WriteFailed is the reason a dispatch did not go through.
type WriteFailed struct {
	Collection string
	DocumentID string
	Reason     error
}

func (e *WriteFailed) Error() string {
	return fmt.Sprintf("write %s/%s failed: %v", e.Collection, e.DocumentID, e.Reason)
}

func (e *WriteFailed) Unwrap() error {
	return e.Reason
}

// Ack is the resolved outcome of one dispatch.
type Ack struct {
	Collection string
	DocumentID string
	// Err is nil on success, otherwise a *WriteFailed.
	Err error
}

// OK reports whether the write was accepted.
func (a Ack) OK() bool {
	return a.Err == nil
}

// Dispatcher sends writes to a [Writer].
type Dispatcher struct {
	writer  Writer
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithTimeout bounds each write. Zero means the caller's context decides.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d >= 0 {
			dp.timeout = d
		}
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(dp *Dispatcher) {
		if logger != nil {
			dp.logger = logger
		}
	}
}

// New creates a dispatcher.
func New(w Writer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		writer: w,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch merges patch into one document.
func (d *Dispatcher) Dispatch(ctx context.Context, collection, id string, patch map[string]any) Ack {
	return d.write(ctx, collection, id, patch, true)
}

// Set replaces one document with fields.
func (d *Dispatcher) Set(ctx context.Context, collection, id string, fields map[string]any) Ack {
	return d.write(ctx, collection, id, fields, false)
}

// Create writes fields under a new document ID. The ID is in the Ack.
func (d *Dispatcher) Create(ctx context.Context, collection string, fields map[string]any) Ack {
	return d.write(ctx, collection, docstore.NewID(), fields, true)
}

// Go runs Dispatch in the background. The channel yields exactly one Ack
// and is then closed.
func (d *Dispatcher) Go(ctx context.Context, collection, id string, patch map[string]any) <-chan Ack {
	out := make(chan Ack, 1)
	go func() {
		defer close(out)
		out <- d.Dispatch(ctx, collection, id, patch)
	}()
	return out
}

func (d *Dispatcher) write(ctx context.Context, collection, id string, patch map[string]any, merge bool) Ack {
	ack := Ack{Collection: collection, DocumentID: id}

	if err := docstore.ValidateCollection(collection); err != nil {
		return d.fail(ack, err)
	}
	if err := docstore.ValidateDocumentID(id); err != nil {
		return d.fail(ack, err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := d.safeWrite(ctx, collection, id, patch, merge); err != nil {
		return d.fail(ack, err)
	}
	d.logger.Debug("dispatch acknowledged",
		"collection", collection,
		"document", id,
		"merge", merge,
		"duration", time.Since(start),
	)
	return ack
}

func (d *Dispatcher) fail(ack Ack, err error) Ack {
	ack.Err = &WriteFailed{Collection: ack.Collection, DocumentID: ack.DocumentID, Reason: err}
	d.logger.Warn("dispatch failed",
		"collection", ack.Collection,
		"document", ack.DocumentID,
		"error", err,
	)
	return ack
}

// safeWrite turns a panicking writer into an error.
func (d *Dispatcher) safeWrite(ctx context.Context, collection, id string, patch map[string]any, merge bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			d.logger.Error("writer panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("writer panic (correlation_id: %s)", correlationID)
		}
	}()
	return d.writer.WriteDocument(ctx, collection, id, patch, merge)
}
