package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iamvazu/SQAN/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed || !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("expected missing dir failure, got %+v", result)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDirectoryAccess_Empty(t *testing.T) {
	if result := CheckDirectoryAccess("test", ""); result.Passed || result.Detail != "not configured" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckBrokerConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if result := CheckBrokerConfig(cfg); !result.Passed {
		t.Fatalf("expected broker config to pass, got %s", result.Detail)
	}
	cfg.Broker.ProjectID = ""
	if result := CheckBrokerConfig(cfg); result.Passed {
		t.Fatal("expected missing project to fail")
	}
}

func TestCheckStoreSQLite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	result := CheckStore(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("expected sqlite store to pass, got %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "0 images pending") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckRedisUnreachable(t *testing.T) {
	result := CheckRedis(context.Background(), "redis://127.0.0.1:1/0")
	if result.Passed {
		t.Fatal("expected unreachable redis to fail")
	}
}

func TestRunAllSelectsChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	qcOnly := RunAll(context.Background(), cfg, Options{QC: true})
	for _, r := range qcOnly {
		if r.Name == "Broker" || r.Name == "Quarantine" {
			t.Fatalf("qc-only run should not check %s", r.Name)
		}
	}
	if failed := Failed(qcOnly); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	all := RunAll(context.Background(), cfg, Options{Ingest: true, QC: true})
	if len(all) <= len(qcOnly) {
		t.Fatalf("expected ingest checks to be added, got %d vs %d", len(all), len(qcOnly))
	}
	if failed := Failed(all); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}
