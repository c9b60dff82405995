package broker

import (
	"context"
	"sync"
	"unicode/utf8"
)

// MaxAttributeValueBytes is the Pub/Sub limit on a message attribute value.
const MaxAttributeValueBytes = 1024

// AttributeValue shortens v to fit MaxAttributeValueBytes without splitting
// a UTF-8 sequence.
func AttributeValue(v string) string {
	if len(v) <= MaxAttributeValueBytes {
		return v
	}
	cut := MaxAttributeValueBytes
	for cut > 0 && !utf8.RuneStart(v[cut]) {
		cut--
	}
	return v[:cut]
}

// Broker is the message transport consumed by the ingestion pipeline.
type Broker interface {
	// Receive blocks, invoking handler for each delivery with at most one
	// message outstanding, until ctx is cancelled.
	Receive(ctx context.Context, handler func(context.Context, *Delivery)) error
	PublishFailed(ctx context.Context, data []byte, attrs map[string]string) error
	PublishCleaned(ctx context.Context, data []byte, attrs map[string]string) error
	PublishIncoming(ctx context.Context, data []byte, attrs map[string]string) error
	Close() error
}

// Delivery is one received message. Ack or Nack settles it; only the first
// call has any effect.
type Delivery struct {
	ID         string
	Data       []byte
	Attributes map[string]string

	once sync.Once
	ack  func()
	nack func()
}

// NewDelivery builds a Delivery around settle callbacks.
func NewDelivery(id string, data []byte, attrs map[string]string, ack, nack func()) *Delivery {
	return &Delivery{ID: id, Data: data, Attributes: attrs, ack: ack, nack: nack}
}

// Ack removes the message from the subscription.
func (d *Delivery) Ack() {
	d.once.Do(func() {
		if d.ack != nil {
			d.ack()
		}
	})
}

// Nack asks the broker to redeliver the message.
func (d *Delivery) Nack() {
	d.once.Do(func() {
		if d.nack != nil {
			d.nack()
		}
	})
}
