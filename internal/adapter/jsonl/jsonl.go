// Package jsonl reads and writes raw records as one JSON envelope per line:
//
//	{"source":"wu_ichtegem","context":"011024","data":{"Time":"12:04 AM",...}}
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/weather-station-etl/internal/domain"
)

const maxLineSize = 4 << 20

// Result is the outcome of reading one line file.
type Result struct {
	Records     []domain.RawRecord
	Undecodable []domain.Rejection
}

// ReadFile reads the line file at path.
func ReadFile(path, defaultContext string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, path, defaultContext)
}

// Read decodes envelopes from r. name prefixes record references as
// name:line. Malformed lines become decode rejections rather than errors.
// defaultContext fills envelopes that carry no context.
func Read(r io.Reader, name, defaultContext string) (Result, error) {
	var res Result
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		ref := fmt.Sprintf("%s:%d", name, line)
		rec, err := domain.DecodeEnvelope(ref, text)
		if err != nil {
			res.Undecodable = append(res.Undecodable, domain.DecodeRejection(ref, err))
			continue
		}
		if rec.Context == "" {
			rec.Context = defaultContext
		}
		res.Records = append(res.Records, rec)
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read %s line %d: %w", name, line+1, err)
	}
	return res, nil
}

// Write encodes envelopes one per line.
func Write(w io.Writer, envelopes []domain.Envelope) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, env := range envelopes {
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("encode envelope %d: %w", i, err)
		}
	}
	return bw.Flush()
}
