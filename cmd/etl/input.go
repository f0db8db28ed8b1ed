package main

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/weather-station-etl/internal/adapter/jsonl"
	s3adapter "github.com/couchcryptid/weather-station-etl/internal/adapter/s3"
	"github.com/couchcryptid/weather-station-etl/internal/adapter/xlsx"
)

// inputSpec names one batch to load.
type inputSpec struct {
	URI     string // local path or s3://bucket/key
	Source  string // source tag for workbooks, whose rows carry none
	Context string // partition context for line files whose envelopes carry none
}

// opener streams a remote object.
type opener func(ctx context.Context, uri string) (io.ReadCloser, error)

// loadInput reads the batch named by spec. Workbooks need a source tag;
// line files without one default their context to the file or object name.
func loadInput(ctx context.Context, spec inputSpec, open opener) (jsonl.Result, error) {
	name := spec.URI
	base := filepath.Base(name)
	if s3adapter.IsURI(name) {
		base = path.Base(name)
	}
	defaultContext := spec.Context
	if defaultContext == "" {
		defaultContext = base
	}

	switch ext := strings.ToLower(path.Ext(base)); ext {
	case ".xlsx":
		if spec.Source == "" {
			return jsonl.Result{}, fmt.Errorf("%s: workbooks need --source", name)
		}
		if !s3adapter.IsURI(name) {
			recs, err := xlsx.ReadFile(name, spec.Source)
			return jsonl.Result{Records: recs}, err
		}
		body, err := open(ctx, name)
		if err != nil {
			return jsonl.Result{}, err
		}
		defer body.Close()
		recs, err := xlsx.Read(body, name, spec.Source)
		return jsonl.Result{Records: recs}, err

	case ".jsonl", ".ndjson", ".json":
		if !s3adapter.IsURI(name) {
			return jsonl.ReadFile(name, defaultContext)
		}
		body, err := open(ctx, name)
		if err != nil {
			return jsonl.Result{}, err
		}
		defer body.Close()
		return jsonl.Read(body, name, defaultContext)

	default:
		return jsonl.Result{}, fmt.Errorf("%s: unsupported input type %q (want .xlsx or .jsonl)", name, ext)
	}
}
