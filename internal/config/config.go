// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxUploadSize is the fixed ceiling for a single uploaded archive (100 MiB).
const MaxUploadSize int64 = 100 * 1024 * 1024

// Config
//
// Every value the gateway needs at runtime. Load() fills it once at process
// start and nothing mutates it afterwards.
type Config struct {

	// ---------------------------
	// Identity / network
	// ---------------------------

	ServiceName string `yaml:"serviceName"`
	InstanceID  string `yaml:"instanceId"` // hostname, random hex when unavailable
	HTTPAddr    string `yaml:"httpAddr"`

	// ---------------------------
	// Object storage
	// ---------------------------
	// Primary persistence needs bucket + key id + secret together.
	// The secondary bucket only receives archives whose account is allow-listed.

	AWSRegion          string        `yaml:"awsRegion"`
	S3Bucket           string        `yaml:"s3Bucket"`
	AWSAccessKeyID     string        `yaml:"awsAccessKeyId"`
	AWSSecretAccessKey string        `yaml:"awsSecretAccessKey"`
	S3Endpoint         string        `yaml:"s3Endpoint"`
	S3Timeout          time.Duration `yaml:"s3Timeout"`
	SecondaryBucket    string        `yaml:"secondaryBucket"`
	SecondaryAccounts  []string      `yaml:"secondaryAccounts"`

	// ---------------------------
	// Pipeline
	// ---------------------------

	RulePackages      []string      `yaml:"rulePackages"`
	WorkDir           string        `yaml:"workDir"`
	ExtractTimeout    time.Duration `yaml:"extractTimeout"`
	EvalTimeout       time.Duration `yaml:"evalTimeout"`
	MaxExtractedBytes int64         `yaml:"maxExtractedBytes"`
	MaxArchiveEntries int           `yaml:"maxArchiveEntries"`
	UploaderLogDir    string        `yaml:"uploaderLogDir"` // "off" disables

	// ---------------------------
	// Logging / tracing
	// ---------------------------

	LogLevel   string `yaml:"logLevel"`
	LogPretty  bool   `yaml:"logPretty"`
	LogSampleN uint32 `yaml:"logSampleN"`

	TracingEnabled  bool    `yaml:"tracingEnabled"`
	OTLPEndpoint    string  `yaml:"otlpEndpoint"`
	OTLPInsecure    bool    `yaml:"otlpInsecure"`
	TraceSampleRate float64 `yaml:"traceSampleRate"`
}

// PersistenceEnabled reports whether primary archive persistence is configured.
func (c Config) PersistenceEnabled() bool {
	return c.S3Bucket != "" && c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""
}

// Load
//
// Reads GATEWAY_CONFIG (optional YAML) and then the environment.
// Malformed values stop the process immediately (fail-fast), the same way a
// missing RULE_PACKAGES does.
func Load() Config {
	cfg, err := Parse(os.Getenv)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

// Parse builds a Config from a lookup function. Split out of Load so tests can
// feed values without touching the process environment.
func Parse(getenv func(string) string) (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(getenv("GATEWAY_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	p := parser{getenv: getenv}

	p.str(&cfg.ServiceName, "SERVICE_NAME")
	p.str(&cfg.InstanceID, "INSTANCE_ID")
	p.str(&cfg.HTTPAddr, "HTTP_ADDR")
	if v := getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			p.fail("PORT", v, err)
		} else {
			cfg.HTTPAddr = ":" + v
		}
	}

	p.str(&cfg.AWSRegion, "AWS_REGION")
	p.str(&cfg.S3Bucket, "S3_BUCKET")
	p.str(&cfg.AWSAccessKeyID, "AWS_ACCESS_KEY_ID")
	p.str(&cfg.AWSSecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	p.str(&cfg.S3Endpoint, "S3_ENDPOINT")
	p.dur(&cfg.S3Timeout, "S3_TIMEOUT")
	p.str(&cfg.SecondaryBucket, "S3_SECONDARY_BUCKET")
	p.list(&cfg.SecondaryAccounts, "SECONDARY_ACCOUNTS")

	p.list(&cfg.RulePackages, "RULE_PACKAGES")
	p.str(&cfg.WorkDir, "WORK_DIR")
	p.dur(&cfg.ExtractTimeout, "EXTRACT_TIMEOUT")
	p.dur(&cfg.EvalTimeout, "EVAL_TIMEOUT")
	p.int64(&cfg.MaxExtractedBytes, "MAX_EXTRACTED_BYTES")
	p.int(&cfg.MaxArchiveEntries, "MAX_ARCHIVE_ENTRIES")
	p.str(&cfg.UploaderLogDir, "UPLOADER_LOG_DIR")

	p.str(&cfg.LogLevel, "LOG_LEVEL")
	p.bool(&cfg.LogPretty, "LOG_PRETTY")
	if v := getenv("LOG_SAMPLE_N"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			p.fail("LOG_SAMPLE_N", v, err)
		}
		cfg.LogSampleN = uint32(n)
	}

	p.bool(&cfg.TracingEnabled, "OTEL_ENABLED")
	p.str(&cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	p.bool(&cfg.OTLPInsecure, "OTEL_EXPORTER_OTLP_INSECURE")
	if v := getenv("OTEL_SAMPLE_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.fail("OTEL_SAMPLE_RATIO", v, err)
		}
		cfg.TraceSampleRate = f
	}

	if p.err != nil {
		return Config{}, p.err
	}
	if len(cfg.RulePackages) == 0 {
		return Config{}, fmt.Errorf("missing required env: RULE_PACKAGES")
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = fallbackInstanceID()
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	switch cfg.UploaderLogDir {
	case "":
		cfg.UploaderLogDir = filepath.Join(cfg.WorkDir, "uploader_logs")
	case "off":
		cfg.UploaderLogDir = ""
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ServiceName:       "insights-gateway",
		HTTPAddr:          ":8080",
		AWSRegion:         "us-east-1",
		S3Timeout:         30 * time.Second,
		ExtractTimeout:    2 * time.Minute,
		EvalTimeout:       5 * time.Minute,
		MaxExtractedBytes: 4 << 30,
		MaxArchiveEntries: 200_000,
		LogLevel:          "info",
	}
}

// parser
//
// Collects the first malformed value instead of exiting, so Parse stays
// testable; Load turns the error into log.Fatalf.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid env %s=%q: %w", key, v, err)
	}
}

func (p *parser) str(dst *string, key string) {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		*dst = v
	}
}

func (p *parser) list(dst *[]string, key string) {
	v := p.getenv(key)
	if v == "" {
		return
	}
	*dst = SplitList(v)
}

func (p *parser) bool(dst *bool, key string) {
	v := p.getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = b
}

func (p *parser) int(dst *int, key string) {
	v := p.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = n
}

func (p *parser) int64(dst *int64, key string) {
	v := p.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = n
}

func (p *parser) dur(dst *time.Duration, key string) {
	v := p.getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = d
}

// SplitList splits a comma-separated value, dropping blanks.
func SplitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// fallbackInstanceID
//
// Identifies this gateway process in logs and the X-Engine-Host header.
//   - default: hostname
//   - fallback: 12 random hex chars
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
