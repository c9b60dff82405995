package daemonrun_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/daemonrun"
	"github.com/iamvazu/SQAN/internal/testsupport"
)

func emulatorConfig(t *testing.T) (*config.Config, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	cfg := testsupport.NewConfig(t)
	cfg.Broker.EmulatorHost = srv.Addr
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return cfg, srv
}

func publishIncoming(t *testing.T, srv *pstest.Server, cfg *config.Config, data []byte) {
	t.Helper()
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial pstest: %v", err)
	}
	defer conn.Close()
	client, err := pubsub.NewClient(context.Background(), cfg.Broker.ProjectID, option.WithGRPCConn(conn))
	if err != nil {
		t.Fatalf("pubsub client: %v", err)
	}
	defer client.Close()
	topic := client.Topic(cfg.Broker.IncomingTopic)
	defer topic.Stop()
	if _, err := topic.Publish(context.Background(), &pubsub.Message{Data: data}).Get(context.Background()); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestBuildQCOnlySkipsBroker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Broker.ProjectID = ""

	rt, err := daemonrun.Build(context.Background(), cfg, nil, daemonrun.ModeQC)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	status := rt.Daemon.Status(context.Background())
	if status.Ingest.Enabled {
		t.Fatal("ingest must be disabled in qc mode")
	}
	if status.QC == nil {
		t.Fatal("expected qc engine to be wired")
	}
}

func TestBuildIngestRequiresProject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Broker.ProjectID = ""

	if _, err := daemonrun.Build(context.Background(), cfg, nil, daemonrun.ModeIngest); err == nil {
		t.Fatal("expected error without broker project")
	}
}

func TestBuildRejectsBadRules(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRules(config.Rule{Field: "EchoTime", Check: "fuzzy", Severity: "error"}))

	if _, err := daemonrun.Build(context.Background(), cfg, nil, daemonrun.ModeQC); err == nil {
		t.Fatal("expected invalid rule to fail wiring")
	}
}

func TestRuntimeIngestsAndChecksHeader(t *testing.T) {
	cfg, srv := emulatorConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := daemonrun.Build(ctx, cfg, nil, daemonrun.ModeAll)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()
	if err := rt.Daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	publishIncoming(t, srv, cfg, testsupport.HeaderJSON(t, nil))

	deadline := time.Now().Add(15 * time.Second)
	for {
		research, err := rt.Store.ListResearch(ctx)
		if err != nil {
			t.Fatalf("ListResearch: %v", err)
		}
		pending, err := rt.Store.CountPendingImages(ctx)
		if err != nil {
			t.Fatalf("CountPendingImages: %v", err)
		}
		if len(research) == 1 && pending == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("header never ingested and checked: research=%d pending=%d", len(research), pending)
		}
		time.Sleep(50 * time.Millisecond)
	}

	raw := filepath.Join(cfg.Paths.RawDir, "IU01", "S042", "1.2.840.1", "T1 MPRAGE", "1.2.840.1.1.json")
	if _, err := os.Stat(raw); err != nil {
		t.Fatalf("expected raw snapshot at %s: %v", raw, err)
	}
}
