package testsupport

import (
	"context"
	"fmt"
	"sync"

	"github.com/iamvazu/SQAN/internal/broker"
)

// Published records one message handed to a FakeBroker topic.
type Published struct {
	Data       []byte
	Attributes map[string]string
}

// FakeBroker is an in-memory broker.Broker. Deliveries queued with Enqueue are
// handed to Receive one at a time; settles and publishes are recorded.
// Publishes with attribute values over the Pub/Sub limit are rejected.
type FakeBroker struct {
	queue chan *broker.Delivery

	mu          sync.Mutex
	failed      []Published
	cleaned     []Published
	incoming    []Published
	acked       []string
	nacked      []string
	failedErr   error
	cleanedErr  error
	incomingErr error
}

// NewFakeBroker returns an empty FakeBroker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{queue: make(chan *broker.Delivery, 64)}
}

// NewDelivery builds a delivery whose settles are recorded by f without
// queueing it.
func (f *FakeBroker) NewDelivery(id string, data []byte) *broker.Delivery {
	return broker.NewDelivery(id, data, nil,
		func() { f.record(&f.acked, id) },
		func() { f.record(&f.nacked, id) },
	)
}

// Enqueue queues a delivery for Receive.
func (f *FakeBroker) Enqueue(id string, data []byte) {
	f.queue <- f.NewDelivery(id, data)
}

func (f *FakeBroker) record(dst *[]string, id string) {
	f.mu.Lock()
	*dst = append(*dst, id)
	f.mu.Unlock()
}

// Receive hands queued deliveries to handler until ctx is cancelled.
func (f *FakeBroker) Receive(ctx context.Context, handler func(context.Context, *broker.Delivery)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-f.queue:
			handler(ctx, d)
		}
	}
}

func (f *FakeBroker) PublishFailed(_ context.Context, data []byte, attrs map[string]string) error {
	return f.publish(&f.failed, f.failedErr, data, attrs)
}

func (f *FakeBroker) PublishCleaned(_ context.Context, data []byte, attrs map[string]string) error {
	return f.publish(&f.cleaned, f.cleanedErr, data, attrs)
}

func (f *FakeBroker) PublishIncoming(_ context.Context, data []byte, attrs map[string]string) error {
	return f.publish(&f.incoming, f.incomingErr, data, attrs)
}

func (f *FakeBroker) publish(dst *[]Published, failure error, data []byte, attrs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if failure != nil {
		return failure
	}
	for k, v := range attrs {
		if len(v) > broker.MaxAttributeValueBytes {
			return fmt.Errorf("attribute %s value too long (%d bytes)", k, len(v))
		}
	}
	*dst = append(*dst, Published{Data: append([]byte(nil), data...), Attributes: attrs})
	return nil
}

func (f *FakeBroker) Close() error { return nil }

// FailPublishes makes subsequent publishes to the named topics fail.
func (f *FakeBroker) FailPublishes(failed, cleaned, incoming error) {
	f.mu.Lock()
	f.failedErr, f.cleanedErr, f.incomingErr = failed, cleaned, incoming
	f.mu.Unlock()
}

// Failed returns messages published to the failed topic.
func (f *FakeBroker) Failed() []Published { return f.snapshot(&f.failed) }

// Cleaned returns messages published to the cleaned topic.
func (f *FakeBroker) Cleaned() []Published { return f.snapshot(&f.cleaned) }

// Incoming returns messages republished to the incoming topic.
func (f *FakeBroker) Incoming() []Published { return f.snapshot(&f.incoming) }

func (f *FakeBroker) snapshot(src *[]Published) []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Published(nil), (*src)...)
}

// Acked returns the IDs of acknowledged deliveries.
func (f *FakeBroker) Acked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

// Nacked returns the IDs of negatively acknowledged deliveries.
func (f *FakeBroker) Nacked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.nacked...)
}

var _ broker.Broker = (*FakeBroker)(nil)
