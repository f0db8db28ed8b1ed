package s3

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/couchcryptid/weather-station-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  map[string]string
	objects map[string]string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.bodies == nil {
		f.bodies = map[string]string{}
	}
	f.bodies[aws.ToString(in.Key)] = string(body)
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(obj))}, nil
}

func testReport() pipeline.RunReport {
	start := time.Date(2024, 10, 2, 23, 59, 59, 0, time.UTC)
	return pipeline.RunReport{
		RunID:      "0b5e0c52-run",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Status:     pipeline.StatusAborted,
		Stage:      pipeline.StageDeduped,
		Error:      "store unavailable",
	}
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "reports/2024/10/02/0b5e0c52-run.json", ReportKey("reports", testReport()))
	assert.Equal(t, "2024/10/02/0b5e0c52-run.json", ReportKey("", testReport()))
	assert.Equal(t, "a/b/2024/10/02/0b5e0c52-run.json", ReportKey("a/b/", testReport()))
}

func TestReportArchive_Publish(t *testing.T) {
	fake := &fakeS3{}
	archive := NewReportArchive(fake, "etl-audit", "reports", slog.Default())

	require.NoError(t, archive.Publish(context.Background(), testReport()))

	require.Len(t, fake.puts, 1)
	in := fake.puts[0]
	assert.Equal(t, "etl-audit", aws.ToString(in.Bucket))
	assert.Equal(t, "application/json", aws.ToString(in.ContentType))
	assert.Equal(t, "aborted", in.Metadata["status"])

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.bodies["reports/2024/10/02/0b5e0c52-run.json"]), &body))
	assert.Equal(t, "0b5e0c52-run", body["run_id"])
	assert.Equal(t, "store unavailable", body["error"])
}

func TestReportArchive_PublishError(t *testing.T) {
	archive := NewReportArchive(&fakeS3{err: errors.New("AccessDenied")}, "etl-audit", "reports", slog.Default())
	err := archive.Publish(context.Background(), testReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://etl-audit/reports/2024/10/02/0b5e0c52-run.json")
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri, bucket, key string
		wantErr          bool
	}{
		{uri: "s3://raw/wu/ichtegem/011024.jsonl", bucket: "raw", key: "wu/ichtegem/011024.jsonl"},
		{uri: "s3://raw/x", bucket: "raw", key: "x"},
		{uri: "s3://raw", wantErr: true},
		{uri: "s3:///key", wantErr: true},
		{uri: "/tmp/file.jsonl", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.uri, func(t *testing.T) {
			bucket, key, err := ParseURI(tc.uri)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.bucket, bucket)
			assert.Equal(t, tc.key, key)
		})
	}
	assert.True(t, IsURI("s3://a/b"))
	assert.False(t, IsURI("a/b"))
}

func TestOpen(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"raw/day.jsonl": `{"source":"infoclimat","data":{}}`}}

	body, err := Open(context.Background(), fake, "s3://raw/day.jsonl")
	require.NoError(t, err)
	defer body.Close()
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(got), "infoclimat")

	_, err = Open(context.Background(), fake, "s3://raw/missing.jsonl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchKey")
}
