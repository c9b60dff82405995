package config

import (
	"errors"
	"fmt"
	"regexp"
)

// Validate ensures the configuration is usable. Broker settings are checked
// separately by ValidateBroker because admin commands run without Pub/Sub.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateHeader(); err != nil {
		return err
	}
	if err := c.validateQC(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path must be set")
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			return errors.New("store.mongo_uri is required for the mongo driver. Set SQAN_MONGO_URI or edit the config file")
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q (expected sqlite or mongo)", c.Store.Driver)
	}
	if c.Store.TimeoutSeconds <= 0 {
		return errors.New("store.timeout_seconds must be positive")
	}
	return nil
}

// ValidateBroker checks the settings needed to consume and publish messages.
func (c *Config) ValidateBroker() error {
	if c.Broker.ProjectID == "" {
		return errors.New("broker.project_id is required. Set PUBSUB_PROJECT_ID or edit the config file (create with 'sqan config init')")
	}
	required := map[string]string{
		"broker.incoming_topic":        c.Broker.IncomingTopic,
		"broker.incoming_subscription": c.Broker.IncomingSubscription,
		"broker.failed_topic":          c.Broker.FailedTopic,
		"broker.cleaned_topic":         c.Broker.CleanedTopic,
	}
	for _, key := range []string{"broker.incoming_topic", "broker.incoming_subscription", "broker.failed_topic", "broker.cleaned_topic"} {
		if required[key] == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}
	if c.Broker.AckDeadlineSeconds < 10 || c.Broker.AckDeadlineSeconds > 600 {
		return errors.New("broker.ack_deadline_seconds must be between 10 and 600")
	}
	if c.Broker.PublishTimeoutSeconds <= 0 {
		return errors.New("broker.publish_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateHeader() error {
	if c.Header.SubjectSegment < 0 {
		return errors.New("header.subject_segment must be zero or positive")
	}
	if c.Header.TemplatePattern != "" {
		if _, err := regexp.Compile(c.Header.TemplatePattern); err != nil {
			return fmt.Errorf("header.template_pattern: %w", err)
		}
	}
	return nil
}

func (c *Config) validateQC() error {
	if err := ensurePositiveMap(map[string]int{
		"qc.batch_size":           c.QC.BatchSize,
		"qc.poll_interval":        c.QC.PollInterval,
		"qc.error_retry_interval": c.QC.ErrorRetryInterval,
		"qc.concurrency":          c.QC.Concurrency,
		"qc.lock_ttl_seconds":     c.QC.LockTTLSeconds,
	}); err != nil {
		return err
	}
	for i, rule := range c.QC.Rules {
		if rule.Field == "" {
			return fmt.Errorf("qc.rules[%d].field must be set", i)
		}
		switch rule.Check {
		case "equal", "exists":
		case "tolerance":
			if rule.Tolerance < 0 {
				return fmt.Errorf("qc.rules[%d].tolerance must not be negative", i)
			}
		default:
			return fmt.Errorf("qc.rules[%d].check: unsupported value %q", i, rule.Check)
		}
		if rule.Severity != "error" && rule.Severity != "warning" {
			return fmt.Errorf("qc.rules[%d].severity: unsupported value %q", i, rule.Severity)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
