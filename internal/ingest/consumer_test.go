package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvazu/SQAN/internal/ingest"
	"github.com/iamvazu/SQAN/internal/services"
	"github.com/iamvazu/SQAN/internal/testsupport"
)

func TestConsumerStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	consumer := ingest.NewConsumer(h.broker, h.pipeline, nil)

	h.broker.Enqueue("m1", testsupport.HeaderJSON(t, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return len(h.broker.Acked()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumerHaltsOnFatalError(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.FailPublishes(errors.New("failed topic down"), nil, nil)
	consumer := ingest.NewConsumer(h.broker, h.pipeline, nil)

	h.broker.Enqueue("bad", []byte("{"))

	done := make(chan error, 1)
	go func() { done <- consumer.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrQuarantine))
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not halt")
	}
	assert.Equal(t, []string{"bad"}, h.broker.Nacked())
}
