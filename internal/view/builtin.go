package view

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
)

// Number coerces a field value to float64. JSON documents carry float64,
// CBOR frames may carry signed or unsigned integers, and numeric strings
// are accepted.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// SumField returns a fold adding up a numeric field. A missing field counts
// as zero; a present field that is not a finite number is a fault.
func SumField(field string) Fold[float64] {
	return func(acc float64, d docstore.Document) (float64, error) {
		raw, ok := d.Fields[field]
		if !ok || raw == nil {
			return acc, nil
		}
		n, ok := Number(raw)
		if !ok {
			return acc, fmt.Errorf("field %q is %T, not a number", field, raw)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return acc, fmt.Errorf("field %q is not finite", field)
		}
		return acc + n, nil
	}
}

// FindByID returns the document with the given ID.
func FindByID(docs []docstore.Document, id string) (docstore.Document, bool) {
	for _, d := range docs {
		if d.ID == id {
			return d, true
		}
	}
	return docstore.Document{}, false
}

// CountWhere counts documents matching pred.
func CountWhere(docs []docstore.Document, pred func(docstore.Document) bool) int {
	n := 0
	for _, d := range docs {
		if pred(d) {
			n++
		}
	}
	return n
}

// Exceeds reports whether value is above ratio of limit. A non-positive
// limit is never exceeded.
func Exceeds(value, limit, ratio float64) bool {
	if limit <= 0 {
		return false
	}
	return value > limit*ratio
}
