package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/daemon"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/storeaccess"
	"github.com/iamvazu/SQAN/internal/testsupport"
	"github.com/iamvazu/SQAN/internal/upsert"
	"github.com/iamvazu/SQAN/internal/workflow"
)

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	full := append([]string(nil), args...)
	if configPath != "" {
		full = append(full, "--config", configPath)
	}
	cmd.SetArgs(full)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("expected %q in output:\n%s", want, out)
	}
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(cfg.Paths.DataDir, "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// seed ingests the given header overrides and closes the store again so the
// CLI gets its own connection.
func seed(t *testing.T, cfg *config.Config, headers ...map[string]any) []*upsert.Result {
	t.Helper()
	ctx := context.Background()
	s, err := storeaccess.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	n, err := header.NewFromConfig(cfg.Header)
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	results := make([]*upsert.Result, 0, len(headers))
	for _, overrides := range headers {
		raw, err := header.Decode(testsupport.HeaderJSON(t, overrides))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		cleaned, id, err := n.Normalize(raw)
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		res, err := upsert.New(s, nil).Upsert(ctx, id, cleaned)
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		results = append(results, res)
	}
	return results
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "sqan", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration to "+target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file: %v", err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config exists without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	cfg := testsupport.NewConfig(t)
	out, _, err = runCLI(t, []string{"config", "validate"}, writeTestConfig(t, cfg))
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Store: sqlite")
	requireContains(t, out, "Configuration valid")
}

func TestConfigValidateRejectsUnknownDriver(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Store.Driver = "postgres"
	_, _, err := runCLI(t, []string{"config", "validate"}, writeTestConfig(t, cfg))
	if err == nil || !strings.Contains(err.Error(), "store.driver") {
		t.Fatalf("expected store.driver error, got %v", err)
	}
}

func TestResearchListEmpty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	out, _, err := runCLI(t, []string{"research", "list"}, writeTestConfig(t, cfg))
	if err != nil {
		t.Fatalf("research list: %v", err)
	}
	requireContains(t, out, "No research found")
}

func TestResearchCommands(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)
	results := seed(t, cfg,
		map[string]any{"SOPInstanceUID": "1.2.840.1.1"},
		map[string]any{"SOPInstanceUID": "1.2.840.1.2", "InstanceNumber": 2},
	)
	researchID := results[0].Research.ID
	seriesID := results[0].Series.ID

	out, _, err := runCLI(t, []string{"research", "list"}, configPath)
	if err != nil {
		t.Fatalf("research list: %v", err)
	}
	requireContains(t, out, researchID)
	requireContains(t, out, "IU01")
	requireContains(t, out, "MR1")

	out, _, err = runCLI(t, []string{"research", "list", "--json"}, configPath)
	if err != nil {
		t.Fatalf("research list --json: %v", err)
	}
	var listed []map[string]any
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(listed) != 1 || listed[0]["id"] != researchID {
		t.Fatalf("unexpected research list: %v", listed)
	}

	out, _, err = runCLI(t, []string{"research", "summary", researchID}, configPath)
	if err != nil {
		t.Fatalf("research summary: %v", err)
	}
	requireContains(t, out, "T1 MPRAGE")
	requireContains(t, out, seriesID)

	if _, _, err := runCLI(t, []string{"research", "reqc", researchID}, configPath); err == nil {
		t.Fatal("expected reqc without --user to fail")
	}
	out, _, err = runCLI(t, []string{"research", "reqc", researchID, "--user", "qc-admin"}, configPath)
	if err != nil {
		t.Fatalf("research reqc: %v", err)
	}
	// Both images are still pending, so nothing needs re-enrolling.
	requireContains(t, out, "Re-enrolled 0 images of research "+researchID)

	out, _, err = runCLI(t, []string{"series", "reqc", seriesID, "--user", "qc-admin", "--failed-only"}, configPath)
	if err != nil {
		t.Fatalf("series reqc: %v", err)
	}
	requireContains(t, out, "Re-enrolled 0 images")

	if _, _, err := runCLI(t, []string{"research", "summary", "missing"}, configPath); err == nil {
		t.Fatal("expected summary of unknown research to fail")
	}
}

func TestTemplateHeadAndPin(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)
	results := seed(t, cfg,
		map[string]any{"SOPInstanceUID": "1.2.840.9.1", "PatientName": "IU01^TEMPLATE", "StudyDate": "20240301"},
		map[string]any{"SOPInstanceUID": "1.2.840.1.1"},
	)
	tmpl := results[0].Template
	if tmpl == nil {
		t.Fatal("expected template from template header")
	}
	seriesID := results[1].Series.ID

	out, _, err := runCLI(t, []string{"template", "head", tmpl.ID}, configPath)
	if err != nil {
		t.Fatalf("template head: %v", err)
	}
	requireContains(t, out, "T1 MPRAGE")
	requireContains(t, out, tmpl.ExamID)

	out, _, err = runCLI(t, []string{"series", "pin", seriesID, tmpl.ExamID}, configPath)
	if err != nil {
		t.Fatalf("series pin: %v", err)
	}
	requireContains(t, out, "pinned to template exam "+tmpl.ExamID)

	if _, _, err := runCLI(t, []string{"series", "pin", seriesID, "no-such-exam"}, configPath); err == nil {
		t.Fatal("expected pin to unknown exam to fail")
	}

	out, _, err = runCLI(t, []string{"series", "unpin", seriesID}, configPath)
	if err != nil {
		t.Fatalf("series unpin: %v", err)
	}
	requireContains(t, out, "follows the latest template exam")
}

func TestQuarantineList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, []string{"quarantine", "list"}, configPath)
	if err != nil {
		t.Fatalf("quarantine list: %v", err)
	}
	requireContains(t, out, "Quarantine is empty")

	if err := os.MkdirAll(cfg.Paths.FailedDir, 0o755); err != nil {
		t.Fatalf("mkdir failed dir: %v", err)
	}
	name := "1.2.840.1.1-msg-1.json"
	if err := os.WriteFile(filepath.Join(cfg.Paths.FailedDir, name), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write quarantine file: %v", err)
	}
	out, _, err = runCLI(t, []string{"quarantine", "list"}, configPath)
	if err != nil {
		t.Fatalf("quarantine list: %v", err)
	}
	requireContains(t, out, name)
}

func TestStatusReportsUnreachableDaemon(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = addr
	out, _, err := runCLI(t, []string{"status"}, writeTestConfig(t, cfg))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon:")
	requireContains(t, out, "[ERROR] Not running")
}

func TestStatusRendersDaemonReport(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	status := daemon.Status{
		Running:     true,
		PID:         4242,
		StartedAt:   &started,
		StoreDriver: "sqlite",
		Ingest:      daemon.IngestStatus{Enabled: true, Running: true},
		QC: &workflow.StatusSummary{
			Running: true,
			Cycles:  7,
			Pending: 3,
			LastCycle: &workflow.CycleResult{
				Checked: 5, Errors: 1, Duration: 20 * time.Millisecond,
			},
		},
		Components: []daemon.ComponentHealth{
			daemon.HealthyComponent("store"),
			daemon.UnhealthyComponent("broker", "subscription missing"),
		},
	}
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = srv.Listener.Addr().String()
	cfg.Paths.APIToken = "s3cret"
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if gotAuth != "Bearer s3cret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	requireContains(t, out, "[OK] Running (pid 4242)")
	requireContains(t, out, "[OK] Consuming")
	requireContains(t, out, "7 cycles, 3 pending")
	requireContains(t, out, "5 checked, 1 errors")
	requireContains(t, out, "Store:")
	requireContains(t, out, "[ERROR] Not ready (subscription missing)")

	out, _, err = runCLI(t, []string{"status", "--json"}, configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var decoded daemon.Status
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode status json: %v", err)
	}
	if decoded.PID != 4242 || decoded.QC == nil || decoded.QC.Pending != 3 {
		t.Fatalf("unexpected decoded status: %+v", decoded)
	}
}

func TestStatusSurfacesAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = srv.Listener.Addr().String()
	_, _, err := runCLI(t, []string{"status"}, writeTestConfig(t, cfg))
	if err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestTestNotifyPrintsDaemonMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/notifications/test" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"sent":false,"message":"ntfy topic not configured"}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = srv.Listener.Addr().String()
	out, _, err := runCLI(t, []string{"test-notify"}, writeTestConfig(t, cfg))
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestLogsShowsTrailingLines(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	content := "INFO ingest: started\nINFO qc: cycle finished\nWARN ingest: quarantined message\n"
	if err := os.WriteFile(filepath.Join(cfg.Paths.LogDir, "sqan.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2", "--grep", "ingest:"}, configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "started") {
		t.Fatalf("expected only the last two lines to be considered, got:\n%s", out)
	}
	requireContains(t, out, "quarantined message")
}

func TestPreflightPassesAndFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, []string{"preflight"}, configPath)
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	requireContains(t, out, "== Preflight ==")
	requireContains(t, out, "[OK] project sqan-test")

	cfg.Broker.ProjectID = ""
	for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		t.Setenv(key, "")
	}
	out, _, err = runCLI(t, []string{"preflight", "--ingest"}, writeTestConfig(t, cfg))
	if err == nil {
		t.Fatalf("expected preflight failure, got:\n%s", out)
	}
	requireContains(t, out, "broker.project_id is required")

	if _, _, err := runCLI(t, []string{"preflight", "--qc"}, configPath); err != nil {
		t.Fatalf("qc-only preflight should ignore broker settings: %v", err)
	}
}
