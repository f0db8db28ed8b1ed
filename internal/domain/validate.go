package domain

import (
	"fmt"
	"slices"
	"strconv"
)

// StoreSchema is the structural contract declared to the store: required
// identity fields, per-field kinds and bounds, and the allowed source values.
type StoreSchema struct {
	Sources []string
}

// NewStoreSchema returns the schema accepting the sources of the given tables.
func NewStoreSchema(tables SourceTables) StoreSchema {
	return StoreSchema{Sources: tables.Sources()}
}

// Validate checks o against the schema and returns a *ValidationRejection for
// the first violation found, in document order.
func (s StoreSchema) Validate(o Observation) error {
	reject := func(reason RejectReason, f Field, detail string) error {
		return &ValidationRejection{Ref: o.Ref, Reason: reason, Field: f, Detail: detail}
	}

	if o.Source == "" {
		return reject(ReasonRequired, FieldSource, "missing")
	}
	if len(s.Sources) > 0 && !slices.Contains(s.Sources, o.Source) {
		return reject(ReasonSchema, FieldSource, fmt.Sprintf("%q not in %v", o.Source, s.Sources))
	}
	if o.StationID == "" {
		return reject(ReasonRequired, FieldStationID, "missing")
	}
	if o.Timestamp.IsZero() {
		return reject(ReasonRequired, FieldTimestamp, "missing")
	}

	for _, spec := range fieldSpecs {
		v, ok := o.Fields[spec.Field]
		if !ok || v.IsNull() {
			continue
		}
		n, isNum := v.Number()
		if spec.Kind == KindText {
			if isNum {
				return reject(ReasonSchema, spec.Field, "expected string")
			}
			continue
		}
		if !isNum {
			return reject(ReasonSchema, spec.Field, "expected number")
		}
		if !spec.Bounds.Contains(n) {
			return reject(ReasonBounds, spec.Field, strconv.FormatFloat(n, 'f', -1, 64)+" out of range")
		}
	}
	return nil
}

// UpsertResult is the outcome of one store upsert call.
type UpsertResult struct {
	Inserted int         `json:"inserted_count"`
	Updated  int         `json:"updated_count"`
	Rejected []Rejection `json:"rejected"`
}

// Merge adds the counts and rejections of other.
func (r *UpsertResult) Merge(other UpsertResult) {
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Rejected = append(r.Rejected, other.Rejected...)
}

// CollapseByKey keeps the last observation per natural key, in order of each
// key's last occurrence. It returns the survivors and the number superseded.
func CollapseByKey(batch []Observation) ([]Observation, int) {
	last := make(map[NaturalKey]int, len(batch))
	for i, o := range batch {
		last[o.Key()] = i
	}
	out := make([]Observation, 0, len(last))
	for i, o := range batch {
		if last[o.Key()] == i {
			out = append(out, o)
		}
	}
	return out, len(batch) - len(out)
}
