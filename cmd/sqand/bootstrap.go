package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iamvazu/SQAN/internal/daemonrun"
)

func optionsFromEnv(getenv func(string) string) (daemonrun.Options, error) {
	opts := daemonrun.Options{
		Mode:     daemonrun.ModeAll,
		LogLevel: strings.TrimSpace(getenv("SQAN_LOG_LEVEL")),
	}
	switch mode := daemonrun.Mode(strings.ToLower(strings.TrimSpace(getenv("SQAN_MODE")))); mode {
	case "":
	case daemonrun.ModeAll, daemonrun.ModeIngest, daemonrun.ModeQC:
		opts.Mode = mode
	default:
		return opts, fmt.Errorf("SQAN_MODE: unsupported value %q (expected all, ingest or qc)", mode)
	}
	if raw := strings.TrimSpace(getenv("SQAN_DEV")); raw != "" {
		dev, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("SQAN_DEV: %w", err)
		}
		opts.Development = dev
	}
	return opts, nil
}
