// Package s3 archives run reports to S3 and opens raw input objects.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/couchcryptid/weather-station-etl/internal/pipeline"
)

// API is the subset of the S3 client used here.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewClient builds an S3 client from the default credential chain. A
// non-empty endpoint selects an S3-compatible service with path-style
// addressing.
func NewClient(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ReportArchive stores one JSON object per run.
// It implements pipeline.ReportPublisher.
type ReportArchive struct {
	client API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewReportArchive creates an archive writing under bucket/prefix.
func NewReportArchive(client API, bucket, prefix string, logger *slog.Logger) *ReportArchive {
	return &ReportArchive{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Publish uploads the report to ReportKey.
func (a *ReportArchive) Publish(ctx context.Context, report pipeline.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize run report: %w", err)
	}
	key := ReportKey(a.prefix, report)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"run-id": report.RunID,
			"status": string(report.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("archive run report s3://%s/%s: %w", a.bucket, key, err)
	}
	a.logger.Debug("run report archived", "run_id", report.RunID, "bucket", a.bucket, "key", key)
	return nil
}

// ReportKey partitions reports by the UTC day the run started:
// prefix/YYYY/MM/DD/run_id.json.
func ReportKey(prefix string, report pipeline.RunReport) string {
	day := report.StartedAt.UTC().Format("2006/01/02")
	return path.Join(prefix, day, report.RunID+".json")
}

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri %q needs a bucket and a key", uri)
	}
	return bucket, key, nil
}

// IsURI reports whether s names an S3 object.
func IsURI(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// Open streams the object at uri. The caller closes the body.
func Open(ctx context.Context, client API, uri string) (io.ReadCloser, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", uri, err)
	}
	if out.Body == nil {
		return nil, errors.New("get " + uri + ": empty body")
	}
	return out.Body, nil
}
