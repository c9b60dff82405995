package ingest

import (
	"context"
	"encoding/json"

	"github.com/iamvazu/SQAN/internal/broker"
	"github.com/iamvazu/SQAN/internal/header"
	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/services"
	"github.com/iamvazu/SQAN/internal/snapshot"
	"github.com/iamvazu/SQAN/internal/upsert"
)

// Step names, in execution order.
const (
	StepDecode          = "decode"
	StepNormalize       = "normalize"
	StepSnapshotRaw     = "snapshot_raw"
	StepClean           = "clean"
	StepSnapshotCleaned = "snapshot_cleaned"
	StepPublishCleaned  = "publish_cleaned"
	StepUpsert          = "upsert"
)

// message is the state threaded through the steps of one delivery.
type message struct {
	delivery   *broker.Delivery
	raw        header.Headers
	id         header.Identity
	identified bool
	cleaned    header.Headers
	result     *upsert.Result
}

// instanceUID returns the best known SOPInstanceUID, or "" before decode.
func (m *message) instanceUID() string {
	if m.identified {
		return m.id.InstanceUID
	}
	uid, _ := m.raw.String("SOPInstanceUID")
	return uid
}

type step struct {
	name string
	// bestEffort failures are logged and the message continues.
	bestEffort bool
	run        func(ctx context.Context, m *message) error
}

func (p *Pipeline) buildSteps() []step {
	return []step{
		{name: StepDecode, run: p.decode},
		{name: StepNormalize, run: p.normalize},
		{name: StepSnapshotRaw, run: p.snapshotRaw},
		{name: StepClean, run: p.clean},
		{name: StepSnapshotCleaned, bestEffort: true, run: p.snapshotCleaned},
		{name: StepPublishCleaned, run: p.publishCleaned},
		{name: StepUpsert, run: p.upsert},
	}
}

func (p *Pipeline) decode(_ context.Context, m *message) error {
	raw, err := header.Decode(m.delivery.Data)
	if err != nil {
		return services.Wrap(services.ErrMalformedHeader, "ingest", StepDecode, "message is not a JSON object", err)
	}
	m.raw = raw
	return nil
}

func (p *Pipeline) normalize(_ context.Context, m *message) error {
	id, err := p.normalizer.Identify(m.raw)
	if err != nil {
		return err
	}
	m.id = id
	m.identified = true
	return nil
}

func (p *Pipeline) snapshotRaw(ctx context.Context, m *message) error {
	_, err := p.rawWriter.Write(ctx, snapshot.Dir(p.rawDir, m.id), snapshot.FileName(m.id.InstanceUID), header.WithIdentity(m.raw, m.id))
	return err
}

func (p *Pipeline) clean(_ context.Context, m *message) error {
	m.cleaned = p.normalizer.Clean(m.raw, m.id)
	return nil
}

func (p *Pipeline) snapshotCleaned(ctx context.Context, m *message) error {
	_, err := p.cleanedWriter.Write(ctx, snapshot.Dir(p.cleanedDir, m.id), snapshot.FileName(m.id.InstanceUID), m.cleaned)
	return err
}

func (p *Pipeline) publishCleaned(ctx context.Context, m *message) error {
	if m.id.IsTemplate {
		logging.WithContext(ctx, p.logger).Debug("template instance not published")
		return nil
	}
	data, err := json.Marshal(m.cleaned)
	if err != nil {
		return services.Wrap(services.ErrMalformedHeader, "ingest", StepPublishCleaned, "encode cleaned headers", err)
	}
	return p.publisher.PublishCleaned(ctx, data, map[string]string{
		header.FieldIndexKey: m.id.IndexKey,
		"instance_uid":       m.id.InstanceUID,
	})
}

func (p *Pipeline) upsert(ctx context.Context, m *message) error {
	result, err := p.upserter.Upsert(ctx, m.id, m.cleaned)
	if err != nil {
		return err
	}
	m.result = result
	return nil
}
