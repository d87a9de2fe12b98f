// Package models defines the record and result types shared by the engine.
package models

// unsetMarker is the sentinel assigned to a field whose coercion,
// validation, or transformation failed without discarding its record.
type unsetMarker struct{}

// Unset is the single sentinel value for failed fields. Writers render it
// as an empty cell / null.
var Unset = unsetMarker{}

func (unsetMarker) String() string { return "" }

// MarshalJSON renders unset fields as JSON null.
func (unsetMarker) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// IsUnset reports whether v is the unset marker.
func IsUnset(v any) bool {
	_, ok := v.(unsetMarker)
	return ok
}

// RawRecord is one extracted item before processing. Fields maps field name
// to the extracted value: a string for document strategies, or a raw scalar
// from an API response. Source records the URL or endpoint the record came
// from.
type RawRecord struct {
	Fields map[string]any
	Source string
}

// ProcessedRecord is the terminal form of a record after the five pipeline
// stages.
type ProcessedRecord struct {
	Fields map[string]any
	Source string
}

// Outcome tags a single page fetch.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeFailed        Outcome = "failed"
	OutcomeRobotsSkipped Outcome = "skipped_by_robots"
)

// PageResult is one strategy invocation's output. NextTarget is empty when
// the page exposes no continuation. ErrorCategory labels a failed outcome
// for the per-category error counters.
type PageResult struct {
	Records       []RawRecord
	NextTarget    string
	Outcome       Outcome
	ErrorCategory string
}
