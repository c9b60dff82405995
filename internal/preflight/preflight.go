package preflight

import (
	"context"

	"github.com/iamvazu/SQAN/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Options selects which halves of the daemon the checks cover.
type Options struct {
	Ingest bool
	QC     bool
}

// RunAll executes the checks applicable to cfg and opts.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if opts.Ingest {
		results = append(results,
			CheckDirectoryAccess("Raw snapshots", cfg.Paths.RawDir),
			CheckDirectoryAccess("Cleaned snapshots", cfg.Paths.CleanedDir),
			CheckDirectoryAccess("Quarantine", cfg.Paths.FailedDir),
			CheckBrokerConfig(cfg),
		)
	}
	results = append(results, CheckStore(ctx, cfg))
	if opts.QC && cfg.Redis.URL != "" {
		results = append(results, CheckRedis(ctx, cfg.Redis.URL))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
