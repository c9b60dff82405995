package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/logging"
	"github.com/iamvazu/SQAN/internal/services"
)

// PubSub implements Broker on Google Cloud Pub/Sub.
type PubSub struct {
	client         *pubsub.Client
	incoming       *pubsub.Topic
	failed         *pubsub.Topic
	cleaned        *pubsub.Topic
	subscription   *pubsub.Subscription
	publishTimeout time.Duration
	logger         *slog.Logger
}

// ClientOptions derives Pub/Sub client options from configuration. An
// emulator host takes precedence over credentials.
func ClientOptions(cfg config.Broker) []option.ClientOption {
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		return []option.ClientOption{
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		}
	}
	if creds := strings.TrimSpace(cfg.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return nil
}

// Open connects to Pub/Sub and makes sure every topic and the incoming
// subscription exist. Extra options are appended to those derived from cfg.
func Open(ctx context.Context, cfg config.Broker, logger *slog.Logger, extra ...option.ClientOption) (*PubSub, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "broker", "open", "broker.project_id is required", nil)
	}
	opts := append(ClientOptions(cfg), extra...)
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, unavailable("connect", err)
	}

	b := &PubSub{
		client:         client,
		publishTimeout: time.Duration(cfg.PublishTimeoutSeconds) * time.Second,
		logger:         logging.NewComponentLogger(logger, "broker"),
	}
	if b.incoming, err = b.ensureTopic(ctx, cfg.IncomingTopic); err != nil {
		_ = client.Close()
		return nil, err
	}
	if b.failed, err = b.ensureTopic(ctx, cfg.FailedTopic); err != nil {
		b.stopTopics()
		_ = client.Close()
		return nil, err
	}
	if b.cleaned, err = b.ensureTopic(ctx, cfg.CleanedTopic); err != nil {
		b.stopTopics()
		_ = client.Close()
		return nil, err
	}
	ackDeadline := time.Duration(cfg.AckDeadlineSeconds) * time.Second
	if b.subscription, err = b.ensureSubscription(ctx, cfg.IncomingSubscription, b.incoming, ackDeadline); err != nil {
		b.stopTopics()
		_ = client.Close()
		return nil, err
	}
	b.subscription.ReceiveSettings.MaxOutstandingMessages = 1
	b.subscription.ReceiveSettings.NumGoroutines = 1

	b.logger.Info("broker ready",
		logging.String("project_id", cfg.ProjectID),
		logging.String("subscription", cfg.IncomingSubscription),
		logging.String("failed_topic", cfg.FailedTopic),
		logging.String("cleaned_topic", cfg.CleanedTopic),
	)
	return b, nil
}

func (b *PubSub) ensureTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	if strings.TrimSpace(name) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "broker", "ensure topic", "topic name is empty", nil)
	}
	topic := b.client.Topic(name)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, unavailable("check topic "+name, err)
	}
	if ok {
		return topic, nil
	}
	topic, err = b.client.CreateTopic(ctx, name)
	if err != nil {
		return nil, unavailable("create topic "+name, err)
	}
	b.logger.Info("created topic", logging.String("topic", name))
	return topic, nil
}

func (b *PubSub) ensureSubscription(ctx context.Context, name string, topic *pubsub.Topic, ackDeadline time.Duration) (*pubsub.Subscription, error) {
	if strings.TrimSpace(name) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "broker", "ensure subscription", "subscription name is empty", nil)
	}
	sub := b.client.Subscription(name)
	ok, err := sub.Exists(ctx)
	if err != nil {
		return nil, unavailable("check subscription "+name, err)
	}
	if ok {
		return sub, nil
	}
	sub, err = b.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: ackDeadline,
	})
	if err != nil {
		return nil, unavailable("create subscription "+name, err)
	}
	b.logger.Info("created subscription", logging.String("subscription", name))
	return sub, nil
}

// Receive delivers messages one at a time until ctx is cancelled.
func (b *PubSub) Receive(ctx context.Context, handler func(context.Context, *Delivery)) error {
	err := b.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		handler(ctx, NewDelivery(msg.ID, msg.Data, msg.Attributes, msg.Ack, msg.Nack))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return unavailable("receive", err)
	}
	return nil
}

// PublishFailed republishes a message to the failed topic.
func (b *PubSub) PublishFailed(ctx context.Context, data []byte, attrs map[string]string) error {
	return b.publish(ctx, b.failed, data, attrs)
}

// PublishCleaned publishes cleaned headers to the fan-out topic.
func (b *PubSub) PublishCleaned(ctx context.Context, data []byte, attrs map[string]string) error {
	return b.publish(ctx, b.cleaned, data, attrs)
}

// PublishIncoming puts a message back on the incoming topic.
func (b *PubSub) PublishIncoming(ctx context.Context, data []byte, attrs map[string]string) error {
	return b.publish(ctx, b.incoming, data, attrs)
}

func (b *PubSub) publish(ctx context.Context, topic *pubsub.Topic, data []byte, attrs map[string]string) error {
	if b.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.publishTimeout)
		defer cancel()
	}
	result := topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return unavailable("publish "+topic.ID(), err)
	}
	return nil
}

// Close flushes pending publishes and releases the client.
func (b *PubSub) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	b.stopTopics()
	return b.client.Close()
}

func (b *PubSub) stopTopics() {
	for _, topic := range []*pubsub.Topic{b.incoming, b.failed, b.cleaned} {
		if topic != nil {
			topic.Stop()
		}
	}
}

func unavailable(op string, err error) error {
	return services.Wrap(services.ErrBrokerUnavailable, "broker", op, fmt.Sprintf("pubsub %s failed", op), err)
}
