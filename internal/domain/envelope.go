package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the self-describing wire form of a raw record, used by line
// files and by stream messages that carry no source header.
type Envelope struct {
	Source  string         `json:"source"`
	Context string         `json:"context,omitempty"`
	Data    map[string]any `json:"data"`
}

// DecodePayload decodes a JSON object, keeping numbers as json.Number so
// that raw text survives until normalization.
func DecodePayload(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if out == nil {
		return nil, errors.New("decode payload: not a JSON object")
	}
	if dec.More() {
		return nil, errors.New("decode payload: trailing data after object")
	}
	return out, nil
}

// DecodeEnvelope decodes an Envelope into a RawRecord tagged ref.
func DecodeEnvelope(ref string, b []byte) (RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return RawRecord{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Source == "" {
		return RawRecord{}, errors.New("decode envelope: source is required")
	}
	if env.Data == nil {
		return RawRecord{}, errors.New("decode envelope: data is required")
	}
	return RawRecord{Ref: ref, Source: env.Source, Context: env.Context, Data: env.Data}, nil
}

// DecodeRejection reports an undecodable input.
func DecodeRejection(ref string, err error) Rejection {
	return Rejection{Ref: ref, Reason: ReasonDecode, Detail: err.Error()}
}
