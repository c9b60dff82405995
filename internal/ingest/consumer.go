package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/iamvazu/SQAN/internal/broker"
	"github.com/iamvazu/SQAN/internal/logging"
)

// Consumer feeds broker deliveries through a Pipeline.
type Consumer struct {
	broker   broker.Broker
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewConsumer constructs a Consumer.
func NewConsumer(b broker.Broker, p *Pipeline, logger *slog.Logger) *Consumer {
	return &Consumer{broker: b, pipeline: p, logger: logging.NewComponentLogger(logger, "ingest-consumer")}
}

// Run receives until ctx is cancelled or the pipeline reports a fatal error,
// which is returned.
func (c *Consumer) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		haltErr error
	)
	c.logger.Info("ingest consumer started")
	err := c.broker.Receive(runCtx, func(msgCtx context.Context, d *broker.Delivery) {
		mu.Lock()
		halted := haltErr != nil
		mu.Unlock()
		if halted {
			d.Nack()
			return
		}
		if perr := c.pipeline.Process(msgCtx, d); perr != nil {
			mu.Lock()
			if haltErr == nil {
				haltErr = perr
			}
			mu.Unlock()
			cancel()
		}
	})

	mu.Lock()
	defer mu.Unlock()
	if haltErr != nil {
		return haltErr
	}
	if err != nil {
		return err
	}
	c.logger.Info("ingest consumer stopped")
	return nil
}
