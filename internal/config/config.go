package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/weather-station-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	MongoURI            string
	MongoDatabase       string
	MongoCollection     string
	MongoConnectTimeout time.Duration
	UpsertBatchSize     int

	NormalizeWorkers    int
	PartitionDateLayout string
	SourceTablesFile    string

	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaReportTopic   string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Run report archive. Disabled when the bucket is empty.
	ReportS3Bucket string
	ReportS3Prefix string
	AWSRegion      string
	S3Endpoint     string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	connectTimeout, err := parsePositiveDuration("MONGO_CONNECT_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	upsertBatchSize, err := parseIntInRange("UPSERT_BATCH_SIZE", 500, 1, 10000)
	if err != nil {
		return nil, err
	}

	workers, err := parseIntInRange("NORMALIZE_WORKERS", 4, 1, 64)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MongoURI:            sharedcfg.EnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:       sharedcfg.EnvOrDefault("MONGO_DATABASE", "weather"),
		MongoCollection:     sharedcfg.EnvOrDefault("MONGO_COLLECTION", "observations"),
		MongoConnectTimeout: connectTimeout,
		UpsertBatchSize:     upsertBatchSize,

		NormalizeWorkers:    workers,
		PartitionDateLayout: sharedcfg.EnvOrDefault("PARTITION_DATE_LAYOUT", domain.DefaultPartitionLayout),
		SourceTablesFile:    os.Getenv("SOURCE_TABLES_FILE"),

		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-weather-records"),
		KafkaReportTopic:   sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "weather-quality-reports"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "weather-station-etl"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ReportS3Bucket: os.Getenv("REPORT_S3_BUCKET"),
		ReportS3Prefix: sharedcfg.EnvOrDefault("REPORT_S3_PREFIX", "reports"),
		AWSRegion:      sharedcfg.EnvOrDefault("AWS_REGION", "eu-west-3"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
	}

	if cfg.MongoURI == "" {
		return nil, errors.New("MONGO_URI is required")
	}
	if cfg.MongoDatabase == "" || cfg.MongoCollection == "" {
		return nil, errors.New("MONGO_DATABASE and MONGO_COLLECTION are required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if strings.Trim(cfg.PartitionDateLayout, "0123456789") != "" {
		return nil, fmt.Errorf("invalid PARTITION_DATE_LAYOUT %q: must be a digits-only Go layout such as 020106", cfg.PartitionDateLayout)
	}

	return cfg, nil
}

// ReportArchiveEnabled reports whether run reports are archived to S3.
func (c *Config) ReportArchiveEnabled() bool {
	return c.ReportS3Bucket != ""
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseIntInRange(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}
