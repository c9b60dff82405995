package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/iamvazu/SQAN/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = base
	cfgVal.Paths.RawDir = filepath.Join(base, "raw")
	cfgVal.Paths.CleanedDir = filepath.Join(base, "cleaned")
	cfgVal.Paths.FailedDir = filepath.Join(base, "failed")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Store.SQLitePath = filepath.Join(base, "sqan.db")
	cfgVal.Broker.ProjectID = "sqan-test"
	cfgVal.QC.PollInterval = 1
	cfgVal.QC.ErrorRetryInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithRules replaces the QC rule table on the test config.
func WithRules(rules ...config.Rule) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.QC.Rules = append([]config.Rule(nil), rules...)
	}
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
		b.cfg.Notifications.Quarantine = true
		b.cfg.Notifications.Halt = true
		b.cfg.Notifications.QCErrors = true
	}
}

// WithMongo switches the store driver to MongoDB at uri.
func WithMongo(uri string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Driver = "mongo"
		b.cfg.Store.MongoURI = uri
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}
