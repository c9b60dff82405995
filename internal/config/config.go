package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains snapshot directories and the daemon bind address.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	RawDir     string `toml:"raw_dir"`
	CleanedDir string `toml:"cleaned_dir"`
	FailedDir  string `toml:"failed_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Store selects and configures the document store backend.
type Store struct {
	Driver         string `toml:"driver"` // sqlite or mongo
	SQLitePath     string `toml:"sqlite_path"`
	MongoURI       string `toml:"mongo_uri"`
	MongoDatabase  string `toml:"mongo_database"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Broker contains Pub/Sub topics and subscriptions used by the ingestion pipeline.
type Broker struct {
	ProjectID             string `toml:"project_id"`
	CredentialsJSON       string `toml:"credentials_json"`
	EmulatorHost          string `toml:"emulator_host"`
	IncomingTopic         string `toml:"incoming_topic"`
	IncomingSubscription  string `toml:"incoming_subscription"`
	FailedTopic           string `toml:"failed_topic"`
	CleanedTopic          string `toml:"cleaned_topic"`
	AckDeadlineSeconds    int    `toml:"ack_deadline_seconds"`
	PublishTimeoutSeconds int    `toml:"publish_timeout_seconds"`
}

// Snapshot configures the optional object-storage mirror of raw snapshots.
type Snapshot struct {
	GCSBucket string `toml:"gcs_bucket"`
	GCSPrefix string `toml:"gcs_prefix"`
}

// Header configures subject/template parsing and header cleaning.
type Header struct {
	SubjectField    string   `toml:"subject_field"`
	SubjectSegment  int      `toml:"subject_segment"`
	TemplateField   string   `toml:"template_field"`
	TemplatePattern string   `toml:"template_pattern"`
	StripFields     []string `toml:"strip_fields"`
}

// Rule is one row of the QC comparison table.
type Rule struct {
	Field     string  `toml:"field"`
	Check     string  `toml:"check"` // equal, tolerance, exists
	Tolerance float64 `toml:"tolerance"`
	Severity  string  `toml:"severity"` // error or warning
	Modality  string  `toml:"modality"`
}

// QC contains batch engine timing and the rule table.
type QC struct {
	BatchSize          int    `toml:"batch_size"`
	PollInterval       int    `toml:"poll_interval"`
	ErrorRetryInterval int    `toml:"error_retry_interval"`
	Concurrency        int    `toml:"concurrency"`
	SeriesRollup       bool   `toml:"series_rollup"`
	LockKey            string `toml:"lock_key"`
	LockTTLSeconds     int    `toml:"lock_ttl_seconds"`
	Rules              []Rule `toml:"rules"`
}

// Redis enables the cross-host QC cycle lock when URL is set.
type Redis struct {
	URL string `toml:"url"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Quarantine     bool   `toml:"quarantine"`
	Halt           bool   `toml:"halt"`
	QCErrors       bool   `toml:"qc_errors"`
}

// Config encapsulates all configuration values for SQAN.
//
// Configuration sections by subsystem:
//   - Paths: snapshot, quarantine and log directories plus the API bind address
//   - Store: document store driver (sqlite or mongo)
//   - Broker: Pub/Sub project, topics and subscription
//   - Snapshot: optional GCS mirror for raw header snapshots
//   - Header: subject/template parsing rules and fields stripped on clean
//   - QC: batch engine cadence, concurrency and the rule table
//   - Redis: cross-host QC cycle lock
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Broker        Broker        `toml:"broker"`
	Snapshot      Snapshot      `toml:"snapshot"`
	Header        Header        `toml:"header"`
	QC            QC            `toml:"qc"`
	Redis         Redis         `toml:"redis"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sqan/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory is
// loaded first so environment fallbacks can come from it.
func Load(path string) (*Config, string, bool, error) {
	_ = godotenv.Load()

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sqan.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the snapshot, quarantine and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.RawDir, c.Paths.CleanedDir, c.Paths.FailedDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "sqan.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
