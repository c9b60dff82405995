package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/lock"
	"github.com/iamvazu/SQAN/internal/storeaccess"
)

const checkTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBrokerConfig verifies the Pub/Sub settings without connecting.
func CheckBrokerConfig(cfg *config.Config) Result {
	const name = "Broker"
	if err := cfg.ValidateBroker(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	detail := "project " + cfg.Broker.ProjectID
	if cfg.Broker.EmulatorHost != "" {
		detail += " via emulator " + cfg.Broker.EmulatorHost
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckStore opens the configured store and runs a pending-image count.
func CheckStore(ctx context.Context, cfg *config.Config) Result {
	name := "Store (" + cfg.Store.Driver + ")"
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	s, err := storeaccess.Open(checkCtx, cfg)
	if err != nil {
		return Result{Name: name, Detail: summarize(err)}
	}
	defer s.Close()
	pending, err := s.CountPendingImages(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarize(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable, %d images pending QC", pending)}
}

// CheckRedis verifies the QC cycle lock backend answers a ping.
func CheckRedis(ctx context.Context, url string) Result {
	const name = "Redis lock"
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	l, err := lock.Open(checkCtx, url, "sqan:preflight", time.Second)
	if err != nil {
		return Result{Name: name, Detail: summarize(err)}
	}
	_ = l.Close()
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

func summarize(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out after " + checkTimeout.String()
	}
	return err.Error()
}
