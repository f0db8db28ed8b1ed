package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanFixture = `{"source":"wu_ichtegem","context":"011024","data":{"Time":"12:04 AM","Temperature":"57.7 °F","Humidity":"87 %"}}
{"source":"wu_ichtegem","context":"011024","data":{"Time":"12:09 AM","Temperature":"57.6 °F","Humidity":"88 %"}}
{"source":"infoclimat","data":{"id_station":"07015","dh_utc":"2024-10-01 00:00:00","temperature":"12.3"}}
`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fixture.jsonl")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestRun_CleanFixturePasses(t *testing.T) {
	var out bytes.Buffer
	code := run(&out, writeFixture(t, cleanFixture), "", 0, false)

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "All validations passed.")
	assert.Contains(t, out.String(), "3 total, 3 accepted, 0 rejected, 3 stored")
}

func TestRun_DefectsFail(t *testing.T) {
	body := cleanFixture +
		`{"source":"wu_ichtegem","context":"011024","data":{"Time":"12:14 AM","Humidity":"140 %"}}` + "\n" +
		`{"source":"nowhere","data":{}}` + "\n" +
		"{broken\n"

	var out bytes.Buffer
	code := run(&out, writeFixture(t, body), "", 0.05, false)

	assert.Equal(t, 1, code)
	s := out.String()
	assert.Contains(t, s, "Validation FAILED.")
	assert.Contains(t, s, "--- Phase 1: fixture decoding ---")
	assert.Contains(t, s, "--- Phase 2: dry run ---")
	assert.Contains(t, s, "pre-load error rate")
	assert.NotContains(t, s, "--- Phase 3")
	assert.NotContains(t, s, "--- Phase 4")
}

func TestRun_AllowUndecodable(t *testing.T) {
	var out bytes.Buffer
	code := run(&out, writeFixture(t, cleanFixture+"{broken\n"), "", 0.5, true)
	assert.Equal(t, 0, code, out.String())
}

func TestRun_MissingFixture(t *testing.T) {
	var out bytes.Buffer
	code := run(&out, filepath.Join(t.TempDir(), "absent.jsonl"), "", 0, false)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "FATAL: load fixture")
}
