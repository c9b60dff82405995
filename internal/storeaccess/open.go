// Package storeaccess opens the configured document store backend.
package storeaccess

import (
	"context"
	"fmt"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/services"
	"github.com/iamvazu/SQAN/internal/store"
	"github.com/iamvazu/SQAN/internal/store/mongo"
	"github.com/iamvazu/SQAN/internal/store/sqlite"
)

// Open returns the store selected by store.driver.
func Open(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "storeaccess", "open", "config is required", nil)
	}
	switch cfg.Store.Driver {
	case "", "sqlite":
		s, err := sqlite.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case "mongo":
		s, err := mongo.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return s, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storeaccess", "open",
			fmt.Sprintf("unsupported store driver %q", cfg.Store.Driver), nil)
	}
}

// Session pairs an open store with its cleanup.
type Session struct {
	Store store.Store
	close func() error
}

// Close releases the store.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenSession opens the configured store for a short-lived CLI command.
func OpenSession(ctx context.Context, cfg *config.Config) (Session, error) {
	s, err := Open(ctx, cfg)
	if err != nil {
		return Session{}, err
	}
	return Session{Store: s, close: s.Close}, nil
}
