//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/iamvazu/SQAN/internal/store"
	"github.com/iamvazu/SQAN/internal/store/mongo"
	"github.com/iamvazu/SQAN/internal/store/storetest"
	"github.com/iamvazu/SQAN/internal/testsupport"
)

func TestStoreContract(t *testing.T) {
	uri := testsupport.StartMongo(t)
	var seq atomic.Int64

	storetest.Run(t, func(t *testing.T) store.Store {
		cfg := testsupport.NewConfig(t, testsupport.WithMongo(uri))
		cfg.Store.MongoDatabase = fmt.Sprintf("sqan_test_%d", seq.Add(1))

		ctx := context.Background()
		s, err := mongo.Open(ctx, cfg)
		if err != nil {
			t.Fatalf("mongo.Open: %v", err)
		}
		t.Cleanup(func() {
			_ = s.Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}
