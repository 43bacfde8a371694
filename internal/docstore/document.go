package docstore

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrClosed is returned (or delivered to listeners) once a store is closed.
	ErrClosed = errors.New("docstore: closed")

	// ErrInvalidCollection is returned for an empty or malformed collection name.
	ErrInvalidCollection = errors.New("docstore: invalid collection name")

	// ErrInvalidDocumentID is returned for an empty or malformed document ID.
	ErrInvalidDocumentID = errors.New("docstore: invalid document id")

	// ErrPermissionDenied is returned when the backend rejects a write for
	// lack of credentials.
	ErrPermissionDenied = errors.New("docstore: permission denied")
)

// ServerTimestamp is a sentinel field value. Stores replace it with their own
// clock (RFC 3339, UTC) when the write is applied. It survives JSON and CBOR
// round trips as a plain string.
const ServerTimestamp = "$serverTimestamp"

// Document is one record of a collection.
//
// Fields hold strings, numbers, booleans or nested map[string]any values.
// A Document received from a listener must be treated as read-only.
type Document struct {
	ID     string         `json:"id" cbor:"id"`
	Fields map[string]any `json:"fields" cbor:"fields"`
}

// Get returns a top-level field value.
func (d Document) Get(field string) (any, bool) {
	v, ok := d.Fields[field]
	return v, ok
}

// String returns a top-level string field, or "" when absent or not a string.
func (d Document) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Bool reports whether a top-level field is the boolean true.
func (d Document) Bool(field string) bool {
	b, _ := d.Fields[field].(bool)
	return b
}

// Service is the realtime document-collection contract.
//
// Implementations must be safe for concurrent use and must not invoke
// listener callbacks synchronously from within OpenListener.
type Service interface {
	// OpenListener begins delivering full-list snapshots of a collection.
	// An initial snapshot is delivered shortly after the listener opens.
	// Snapshots for one listener arrive in order, one callback at a time.
	// onError is called at most once; no snapshot follows it.
	// The returned close function stops delivery and is idempotent.
	OpenListener(collection string, onSnapshot func([]Document), onError func(error)) (func(), error)

	// WriteDocument creates or updates one document. With merge set, the
	// patch is deep-merged into the existing fields; otherwise the
	// document is replaced.
	WriteDocument(ctx context.Context, collection, id string, patch map[string]any, merge bool) error
}

// NewID returns a new lexicographically sortable document ID.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// ValidateCollection checks a collection name.
func ValidateCollection(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return ErrInvalidCollection
	}
	return nil
}

// ValidateDocumentID checks a document ID.
func ValidateDocumentID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\x00") {
		return ErrInvalidDocumentID
	}
	return nil
}

// mergeFields returns a new field map: base deep-merged with patch. Neither
// input is modified. Nested maps in patch are merged key by key.
func mergeFields(base, patch map[string]any, stamp string) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if pm, ok := v.(map[string]any); ok {
			if bm, ok := out[k].(map[string]any); ok {
				out[k] = mergeFields(bm, pm, stamp)
				continue
			}
		}
		out[k] = resolveValue(v, stamp)
	}
	return out
}

// resolveValue deep-copies nested maps and replaces ServerTimestamp sentinels.
func resolveValue(v any, stamp string) any {
	switch t := v.(type) {
	case string:
		if t == ServerTimestamp {
			return stamp
		}
		return t
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, nv := range t {
			cp[k] = resolveValue(nv, stamp)
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, nv := range t {
			cp[i] = resolveValue(nv, stamp)
		}
		return cp
	default:
		return v
	}
}
