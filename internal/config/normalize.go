package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeBroker()
	c.normalizeSnapshot()
	c.normalizeHeader()
	c.normalizeQC()
	c.normalizeRedis()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	subdirs := []struct {
		key   string
		value *string
		name  string
	}{
		{"paths.raw_dir", &c.Paths.RawDir, "raw"},
		{"paths.cleaned_dir", &c.Paths.CleanedDir, "cleaned"},
		{"paths.failed_dir", &c.Paths.FailedDir, "failed"},
		{"paths.log_dir", &c.Paths.LogDir, "logs"},
	}
	for _, dir := range subdirs {
		if strings.TrimSpace(*dir.value) == "" {
			*dir.value = filepath.Join(c.Paths.DataDir, dir.name)
		}
		if *dir.value, err = expandPath(*dir.value); err != nil {
			return fmt.Errorf("%s: %w", dir.key, err)
		}
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = strings.TrimSpace(os.Getenv("SQAN_API_TOKEN"))
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	var err error
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = filepath.Join(c.Paths.DataDir, "sqan.db")
	}
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	if c.Store.MongoURI == "" {
		if value, ok := os.LookupEnv("SQAN_MONGO_URI"); ok {
			c.Store.MongoURI = value
		}
	}
	c.Store.MongoURI = strings.TrimSpace(c.Store.MongoURI)
	c.Store.MongoDatabase = strings.TrimSpace(c.Store.MongoDatabase)
	if c.Store.MongoDatabase == "" {
		c.Store.MongoDatabase = defaultMongoDatabase
	}
	return nil
}

func (c *Config) normalizeBroker() {
	if c.Broker.ProjectID == "" {
		for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.Broker.ProjectID = value
				break
			}
		}
	}
	if c.Broker.CredentialsJSON == "" {
		if value, ok := os.LookupEnv("PUBSUB_CREDENTIALS_JSON"); ok {
			c.Broker.CredentialsJSON = value
		}
	}
	if c.Broker.EmulatorHost == "" {
		if value, ok := os.LookupEnv("PUBSUB_EMULATOR_HOST"); ok {
			c.Broker.EmulatorHost = value
		}
	}
	c.Broker.ProjectID = strings.TrimSpace(c.Broker.ProjectID)
	c.Broker.EmulatorHost = strings.TrimSpace(c.Broker.EmulatorHost)
	c.Broker.IncomingTopic = strings.TrimSpace(c.Broker.IncomingTopic)
	c.Broker.IncomingSubscription = strings.TrimSpace(c.Broker.IncomingSubscription)
	c.Broker.FailedTopic = strings.TrimSpace(c.Broker.FailedTopic)
	c.Broker.CleanedTopic = strings.TrimSpace(c.Broker.CleanedTopic)
}

func (c *Config) normalizeSnapshot() {
	c.Snapshot.GCSBucket = strings.TrimSpace(c.Snapshot.GCSBucket)
	c.Snapshot.GCSPrefix = strings.Trim(strings.TrimSpace(c.Snapshot.GCSPrefix), "/")
}

func (c *Config) normalizeHeader() {
	c.Header.SubjectField = strings.TrimSpace(c.Header.SubjectField)
	if c.Header.SubjectField == "" {
		c.Header.SubjectField = defaultSubjectField
	}
	c.Header.TemplateField = strings.TrimSpace(c.Header.TemplateField)
	if c.Header.TemplateField == "" {
		c.Header.TemplateField = defaultTemplateField
	}
	c.Header.TemplatePattern = strings.TrimSpace(c.Header.TemplatePattern)
	fields := c.Header.StripFields[:0]
	for _, field := range c.Header.StripFields {
		if field = strings.TrimSpace(field); field != "" {
			fields = append(fields, field)
		}
	}
	c.Header.StripFields = fields
}

func (c *Config) normalizeQC() {
	for i := range c.QC.Rules {
		rule := &c.QC.Rules[i]
		rule.Field = strings.TrimSpace(rule.Field)
		rule.Check = strings.ToLower(strings.TrimSpace(rule.Check))
		if rule.Check == "" {
			rule.Check = "equal"
		}
		rule.Severity = strings.ToLower(strings.TrimSpace(rule.Severity))
		if rule.Severity == "" {
			rule.Severity = "error"
		}
		rule.Modality = strings.TrimSpace(rule.Modality)
	}
	c.QC.LockKey = strings.TrimSpace(c.QC.LockKey)
	if c.QC.LockKey == "" {
		c.QC.LockKey = defaultQCLockKey
	}
}

func (c *Config) normalizeRedis() {
	if c.Redis.URL == "" {
		if value, ok := os.LookupEnv("SQAN_REDIS_URL"); ok {
			c.Redis.URL = value
		}
	}
	c.Redis.URL = strings.TrimSpace(c.Redis.URL)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SQAN_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}
