package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/weather-station-etl/internal/config"
	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"github.com/couchcryptid/weather-station-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEnv() *env {
	return &env{
		cfg: &config.Config{
			PartitionDateLayout: domain.DefaultPartitionLayout,
			NormalizeWorkers:    2,
		},
		logger: discardLogger(),
		tables: domain.DefaultSourceTables(),
	}
}

const fixture = `{"source":"wu_ichtegem","context":"011024","data":{"Time":"12:04 AM","Temperature":"57.7 °F","Humidity":"87 %"}}
{"source":"wu_ichtegem","context":"011024","data":{"Time":"12:04 AM","Temperature":"57.7 °F","Humidity":"87 %"}}
{"source":"wu_ichtegem","context":"011024","data":{"Time":"12:09 AM","Temperature":"57.6 °F","Humidity":"150 %"}}
{"source":"infoclimat","data":{"id_station":"07015","dh_utc":"2024-10-01 00:00:00","temperature":"12.3"}}
not json
`

func writeFixture(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadInput_JSONL(t *testing.T) {
	p := writeFixture(t, "011024.jsonl", fixture)

	res, err := loadInput(context.Background(), inputSpec{URI: p}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Records, 4)
	require.Len(t, res.Undecodable, 1)
	assert.Equal(t, p+":5", res.Undecodable[0].Ref)
	assert.Equal(t, "011024.jsonl", res.Records[3].Context, "context defaults to file name")
}

func TestLoadInput_S3(t *testing.T) {
	var opened string
	open := func(_ context.Context, uri string) (io.ReadCloser, error) {
		opened = uri
		return io.NopCloser(strings.NewReader(fixture)), nil
	}

	res, err := loadInput(context.Background(), inputSpec{URI: "s3://raw/wu/021024.jsonl", Context: "021024"}, open)
	require.NoError(t, err)
	assert.Equal(t, "s3://raw/wu/021024.jsonl", opened)
	assert.Len(t, res.Records, 4)
	assert.Equal(t, "021024", res.Records[3].Context)
	assert.Equal(t, "s3://raw/wu/021024.jsonl:1", res.Records[0].Ref)
}

func TestLoadInput_S3OpenError(t *testing.T) {
	open := func(context.Context, string) (io.ReadCloser, error) { return nil, errors.New("NoSuchBucket") }
	_, err := loadInput(context.Background(), inputSpec{URI: "s3://raw/day.jsonl"}, open)
	require.ErrorContains(t, err, "NoSuchBucket")
}

func TestLoadInput_XLSX(t *testing.T) {
	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })
	require.NoError(t, f.SetSheetName("Sheet1", "011024"))
	require.NoError(t, f.SetSheetRow("011024", "A1", &[]any{"Time", "Temperature"}))
	require.NoError(t, f.SetSheetRow("011024", "A2", &[]any{"12:04 AM", "57.7 °F"}))
	p := filepath.Join(t.TempDir(), "ichtegem.xlsx")
	require.NoError(t, f.SaveAs(p))

	_, err := loadInput(context.Background(), inputSpec{URI: p}, nil)
	require.ErrorContains(t, err, "--source")

	res, err := loadInput(context.Background(), inputSpec{URI: p, Source: "wu_ichtegem"}, nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "011024", res.Records[0].Context)
}

func TestLoadInput_Unsupported(t *testing.T) {
	_, err := loadInput(context.Background(), inputSpec{URI: "readings.csv"}, nil)
	require.ErrorContains(t, err, "unsupported input type")
}

func TestRunOnce_DryRun(t *testing.T) {
	p := writeFixture(t, "011024.jsonl", fixture)

	var out bytes.Buffer
	err := runOnce(context.Background(), testEnv(), runFlags{
		input:     inputSpec{URI: p},
		dryRun:    true,
		reportOut: "-",
	}, observability.NewMetricsForTesting(), &out)
	require.NoError(t, err)

	var report struct {
		Status  string `json:"status"`
		PreLoad struct {
			Total            int            `json:"total"`
			Accepted         int            `json:"accepted"`
			RejectedByReason map[string]int `json:"rejected_by_reason"`
		} `json:"pre_load"`
		PostLoad struct {
			Load struct {
				Inserted int `json:"inserted_count"`
				Rejected []struct {
					Ref    string `json:"input_reference"`
					Reason string `json:"reason"`
				} `json:"rejected"`
			} `json:"load"`
		} `json:"post_load"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))

	assert.Equal(t, "completed", report.Status)
	assert.Equal(t, 5, report.PreLoad.Total)
	assert.Equal(t, 3, report.PreLoad.Accepted)
	assert.Equal(t, 1, report.PreLoad.RejectedByReason["decode"])
	assert.Equal(t, 1, report.PreLoad.RejectedByReason["duplicate"])
	assert.Equal(t, 2, report.PostLoad.Load.Inserted)
	require.Len(t, report.PostLoad.Load.Rejected, 1)
	assert.Equal(t, "bounds", report.PostLoad.Load.Rejected[0].Reason)
	assert.Equal(t, p+":3", report.PostLoad.Load.Rejected[0].Ref)
}

func TestRunOnce_ReportToFile(t *testing.T) {
	p := writeFixture(t, "011024.jsonl", fixture)
	dest := filepath.Join(t.TempDir(), "report.json")

	var out bytes.Buffer
	err := runOnce(context.Background(), testEnv(), runFlags{
		input:     inputSpec{URI: p},
		dryRun:    true,
		reportOut: dest,
	}, observability.NewMetricsForTesting(), &out)
	require.NoError(t, err)
	assert.Empty(t, out.String())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id"`)
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "run", "schema"})

	root.SetArgs([]string{"run"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	err := root.Execute()
	require.ErrorContains(t, err, `required flag(s) "input" not set`)
}
