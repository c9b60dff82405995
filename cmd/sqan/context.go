package main

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/iamvazu/SQAN/internal/admin"
	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/notifications"
	"github.com/iamvazu/SQAN/internal/storeaccess"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withAdmin opens the configured store for the duration of fn.
func (c *commandContext) withAdmin(ctx context.Context, fn func(*admin.Service) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	session, err := storeaccess.OpenSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()
	svc := admin.NewService(session.Store, notifications.NewService(cfg), logging.NewNop())
	return fn(svc)
}

// apiBaseURL returns the daemon HTTP endpoint derived from paths.api_bind.
func (c *commandContext) apiBaseURL() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return "", fmt.Errorf("paths.api_bind is empty; the daemon HTTP API is disabled")
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "", fmt.Errorf("parse paths.api_bind %q: %w", bind, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func optional(value *string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return "-"
	}
	return *value
}
