package domain

import (
	"errors"
	"fmt"
)

// RejectReason categorizes why a record was excluded from a batch or refused
// by the store.
type RejectReason string

const (
	ReasonDecode    RejectReason = "decode"
	ReasonMapping   RejectReason = "mapping"
	ReasonTimestamp RejectReason = "timestamp"
	ReasonDuplicate RejectReason = "duplicate"
	ReasonRequired  RejectReason = "required"
	ReasonBounds    RejectReason = "bounds"
	ReasonSchema    RejectReason = "schema"
	ReasonConflict  RejectReason = "conflict"
	ReasonWrite     RejectReason = "write"
)

// Rejection records one excluded record.
type Rejection struct {
	Ref    string       `json:"input_reference"`
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}

// ErrStoreUnavailable marks a whole-batch persistence failure. Runs that hit it
// abort instead of reporting a partial load.
var ErrStoreUnavailable = errors.New("schema store unavailable")

// MappingError reports a raw record whose identity cannot be resolved.
type MappingError struct {
	Ref    string
	Source string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map record %s (source %q): %s", e.Ref, e.Source, e.Reason)
}

// Rejection converts the error into a batch rejection.
func (e *MappingError) Rejection() Rejection {
	return Rejection{Ref: e.Ref, Reason: ReasonMapping, Detail: e.Reason}
}

// TimestampError reports a record whose instant cannot be reconstructed.
type TimestampError struct {
	Ref      string
	TimeText string
	Context  string
	Err      error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("resolve timestamp %q (context %q) for %s: %v", e.TimeText, e.Context, e.Ref, e.Err)
}

func (e *TimestampError) Unwrap() error { return e.Err }

// Rejection converts the error into a batch rejection.
func (e *TimestampError) Rejection() Rejection {
	return Rejection{Ref: e.Ref, Reason: ReasonTimestamp, Detail: e.Error()}
}

// ConversionWarning reports a field that was present but could not be parsed.
// The field is set to null; the record survives.
type ConversionWarning struct {
	Ref   string `json:"input_reference"`
	Field Field  `json:"field"`
	Raw   any    `json:"raw"`
}

func (w ConversionWarning) String() string {
	return fmt.Sprintf("%s: unparseable %s value %v", w.Ref, w.Field, w.Raw)
}

// ValidationRejection reports a structural or bounds violation detected at
// store write time.
type ValidationRejection struct {
	Ref    string
	Reason RejectReason
	Field  Field
	Detail string
}

func (e *ValidationRejection) Error() string {
	return fmt.Sprintf("reject %s: %s on %s: %s", e.Ref, e.Reason, e.Field, e.Detail)
}

// Rejection converts the error into a store rejection.
func (e *ValidationRejection) Rejection() Rejection {
	return Rejection{Ref: e.Ref, Reason: e.Reason, Detail: fmt.Sprintf("%s: %s", e.Field, e.Detail)}
}
