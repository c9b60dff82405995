package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iamvazu/SQAN/internal/broker"
	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/metrics"
	"github.com/iamvazu/SQAN/internal/notifications"
	"github.com/iamvazu/SQAN/internal/services"
	"github.com/iamvazu/SQAN/internal/snapshot"
	"github.com/iamvazu/SQAN/internal/upsert"
)

// Upserter files normalized headers in the document store.
type Upserter interface {
	Upsert(ctx context.Context, id header.Identity, cleaned header.Headers) (*upsert.Result, error)
}

// Publisher is the subset of broker.Broker the pipeline publishes through.
type Publisher interface {
	PublishFailed(ctx context.Context, data []byte, attrs map[string]string) error
	PublishCleaned(ctx context.Context, data []byte, attrs map[string]string) error
}

// Deps bundles the collaborators of a Pipeline. RawWriter and CleanedWriter
// default to disk writers rooted at the configured directories; Notifier,
// Metrics, Tracer and Logger may be nil.
type Deps struct {
	Normalizer    *header.Normalizer
	Upserter      Upserter
	Publisher     Publisher
	RawWriter     snapshot.Writer
	CleanedWriter snapshot.Writer
	Notifier      notifications.Service
	Metrics       *metrics.Metrics
	Tracer        trace.Tracer
	Logger        *slog.Logger
}

// Pipeline runs the ingestion steps for one delivery at a time.
type Pipeline struct {
	normalizer    *header.Normalizer
	upserter      Upserter
	publisher     Publisher
	rawWriter     snapshot.Writer
	cleanedWriter snapshot.Writer
	quarantine    *Quarantine
	notifier      notifications.Service
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	logger        *slog.Logger

	rawDir     string
	cleanedDir string
	steps      []step

	mu sync.Mutex
}

// NewPipeline wires a Pipeline from configuration and collaborators.
func NewPipeline(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("ingest pipeline requires configuration")
	}
	if deps.Normalizer == nil || deps.Upserter == nil || deps.Publisher == nil {
		return nil, errors.New("ingest pipeline requires normalizer, upserter and publisher")
	}
	logger := logging.NewComponentLogger(deps.Logger, "ingest")
	p := &Pipeline{
		normalizer:    deps.Normalizer,
		upserter:      deps.Upserter,
		publisher:     deps.Publisher,
		rawWriter:     deps.RawWriter,
		cleanedWriter: deps.CleanedWriter,
		quarantine:    NewQuarantine(cfg.Paths.FailedDir, deps.Publisher),
		notifier:      deps.Notifier,
		metrics:       deps.Metrics,
		tracer:        deps.Tracer,
		logger:        logger,
		rawDir:        cfg.Paths.RawDir,
		cleanedDir:    cfg.Paths.CleanedDir,
	}
	if p.rawWriter == nil {
		p.rawWriter = snapshot.NewDisk(cfg.Paths.RawDir, nil, deps.Logger)
	}
	if p.cleanedWriter == nil {
		p.cleanedWriter = snapshot.NewDisk(cfg.Paths.CleanedDir, nil, deps.Logger)
	}
	if p.notifier == nil {
		p.notifier = notifications.NewService(nil)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/iamvazu/SQAN/internal/ingest")
	}
	p.steps = p.buildSteps()
	return p, nil
}

// Process runs every step for d and settles it. A nil return means d was
// acknowledged, either after success or after quarantine. A non-nil return is
// fatal: d was nacked and the consumer must stop.
func (p *Pipeline) Process(ctx context.Context, d *broker.Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A message that entered the steps runs to completion or quarantine even
	// while the consumer shuts down.
	ctx = services.WithMessageID(context.WithoutCancel(ctx), d.ID)
	ctx, span := p.tracer.Start(ctx, "ingest.message", trace.WithAttributes(attribute.String("messaging.message.id", d.ID)))
	defer span.End()

	m := &message{delivery: d}
	for _, st := range p.steps {
		stepCtx := services.WithStep(ctx, st.name)
		err := p.runStep(stepCtx, st, m)
		if st.name == StepDecode || st.name == StepNormalize {
			ctx = services.WithInstanceUID(ctx, m.instanceUID())
		}
		if err == nil {
			continue
		}
		if st.bestEffort {
			logging.WarnWithContext(logging.WithContext(stepCtx, p.logger), "best-effort step failed", st.name+"_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check free space and permissions under paths.cleaned_dir"),
				logging.String(logging.FieldImpact, "cleaned snapshot missing for this instance"),
			)
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, st.name)
		return p.fail(services.WithStep(ctx, st.name), m, st.name, err)
	}

	d.Ack()
	p.metrics.IncMessage(metrics.OutcomeAcked)
	attrs := []logging.Attr{logging.Bool("template", m.id.IsTemplate)}
	if m.result != nil && m.result.Series != nil {
		attrs = append(attrs, logging.String(logging.FieldSeriesID, m.result.Series.ID))
	}
	if m.result != nil && m.result.Image != nil {
		attrs = append(attrs, logging.String(logging.FieldImageID, m.result.Image.ID))
	}
	logging.WithContext(ctx, p.logger).Debug("message acknowledged", logging.Args(attrs...)...)
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, st step, m *message) error {
	ctx, span := p.tracer.Start(ctx, "ingest."+st.name)
	defer span.End()
	start := time.Now()
	err := st.run(ctx, m)
	p.metrics.ObserveStep(st.name, time.Since(start), err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// fail routes a failed message to quarantine, or halts when that is not safe.
func (p *Pipeline) fail(ctx context.Context, m *message, stepName string, stepErr error) error {
	logger := logging.WithContext(ctx, p.logger)
	if services.IsFatal(stepErr) {
		return p.halt(ctx, m, stepErr)
	}

	uid := m.instanceUID()
	path, err := p.quarantine.Route(ctx, m.delivery, uid, stepName, stepErr)
	if err != nil {
		return p.halt(ctx, m, err)
	}

	m.delivery.Ack()
	p.metrics.IncMessage(metrics.OutcomeQuarantined)
	logging.WarnWithContext(logger, "message quarantined", "message_quarantined",
		logging.Error(stepErr),
		logging.String("quarantine_path", path),
		logging.String(logging.FieldErrorHint, "inspect the quarantine file, fix the source, then run sqan quarantine replay"),
		logging.String(logging.FieldImpact, "instance not filed until replayed"),
	)
	p.notify(ctx, notifications.EventMessageQuarantined, notifications.Payload{
		"instanceUID": uid,
		"step":        stepName,
		"error":       stepErr.Error(),
	})
	return nil
}

func (p *Pipeline) halt(ctx context.Context, m *message, err error) error {
	m.delivery.Nack()
	p.metrics.IncMessage(metrics.OutcomeHalted)
	logging.ErrorWithContext(logging.WithContext(ctx, p.logger), "ingest halted", "consumer_halted",
		logging.Error(err),
		logging.Alert("ingest_halted"),
		logging.String(logging.FieldErrorHint, "check disk space and permissions for raw_dir and failed_dir, then restart"),
		logging.String(logging.FieldImpact, "no further messages are consumed"),
	)
	p.notify(ctx, notifications.EventConsumerHalted, notifications.Payload{"error": err.Error()})
	return err
}

func (p *Pipeline) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := p.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operators were not alerted"),
		)
	}
}
