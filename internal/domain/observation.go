package domain

import (
	"bytes"
	"encoding/json"
	"maps"
	"time"
)

type valueKind uint8

const (
	valueNull valueKind = iota
	valueNumber
	valueText
)

// Value is a nullable canonical field value. The zero Value is null.
type Value struct {
	kind valueKind
	num  float64
	text string
}

// NullValue returns a value for a measurement that was attempted but unavailable.
func NullValue() Value { return Value{} }

// NumberValue wraps a numeric reading.
func NumberValue(v float64) Value { return Value{kind: valueNumber, num: v} }

// TextValue wraps a text reading.
func TextValue(s string) Value { return Value{kind: valueText, text: s} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == valueNull }

// Number returns the numeric reading, if any.
func (v Value) Number() (float64, bool) { return v.num, v.kind == valueNumber }

// Text returns the text reading, if any.
func (v Value) Text() (string, bool) { return v.text, v.kind == valueText }

// Interface returns nil, a float64 or a string.
func (v Value) Interface() any {
	switch v.kind {
	case valueNumber:
		return v.num
	case valueText:
		return v.text
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// RawRecord is one unprocessed record handed over by an ingestion collaborator.
type RawRecord struct {
	Ref     string         // input reference used in rejection reports
	Source  string         // declared source tag, selects a SourceTable
	Context string         // partition or path metadata carrying the calendar date
	Data    map[string]any // decoded JSON-like payload
}

// Observation is the canonical, metric-unit record stored per station and
// minute. Treat it as an immutable value: stages return new observations
// rather than editing existing ones.
type Observation struct {
	Ref        string
	Source     string
	StationID  string
	Timestamp  time.Time
	Fields     map[Field]Value // a missing key means the channel never produces the field
	RecordHash string
}

// Get returns the value of a non-identity field and whether it is present.
func (o Observation) Get(f Field) (Value, bool) {
	v, ok := o.Fields[f]
	return v, ok
}

// WithHash returns a copy carrying the given record hash.
func (o Observation) WithHash(hash string) Observation {
	o.Fields = maps.Clone(o.Fields)
	o.RecordHash = hash
	return o
}

// NaturalKey identifies an observation in the store.
type NaturalKey struct {
	StationID string
	Timestamp time.Time
}

// Key returns the observation's natural key.
func (o Observation) Key() NaturalKey {
	return NaturalKey{StationID: o.StationID, Timestamp: o.Timestamp.UTC()}
}

// DocField is one key/value pair of the canonical document.
type DocField struct {
	Key   string
	Value any // nil, float64, string or time.Time
}

// Document returns the canonical document in schema order. Absent fields are
// omitted, null fields are present with a nil value.
func (o Observation) Document() []DocField {
	doc := make([]DocField, 0, len(fieldSpecs)+4)
	doc = append(doc,
		DocField{Key: string(FieldSource), Value: o.Source},
		DocField{Key: string(FieldStationID), Value: o.StationID},
	)
	for _, spec := range fieldSpecs {
		if spec.Field == FieldTemperatureC {
			doc = append(doc, DocField{Key: string(FieldTimestamp), Value: o.Timestamp.UTC()})
		}
		if v, ok := o.Fields[spec.Field]; ok {
			doc = append(doc, DocField{Key: string(spec.Field), Value: v.Interface()})
		}
	}
	if o.RecordHash != "" {
		doc = append(doc, DocField{Key: string(FieldRecordHash), Value: o.RecordHash})
	}
	return doc
}

// MarshalJSON encodes the canonical document, keeping schema order and the
// null/absent distinction.
func (o Observation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o.Document() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val := f.Value
		if t, ok := val.(time.Time); ok {
			val = t.Format(time.RFC3339)
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
