package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Stream settings for the JetStream stream holding ingestion jobs.
const (
	StreamName    = "INGESTION"
	streamSubject = "ingestion.>"
	durableName   = "ingestion-workers"
	queueGroup    = "ingestion"
)

// NATSConfig configures the JetStream transport.
type NATSConfig struct {
	URL            string
	MaxDeliver     int // redeliveries before a job is dropped
	AckWait        time.Duration
	Subscribers    int
	MaxReconnects  int
	ReconnectWait  time.Duration
	StreamMaxAge   time.Duration
	ConnectTimeout time.Duration
}

func (c NATSConfig) withDefaults() NATSConfig {
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 5
	}
	if c.AckWait <= 0 {
		// A run holds its message unacked until it finishes.
		c.AckWait = 30 * time.Minute
	}
	if c.Subscribers <= 0 {
		c.Subscribers = 1
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.StreamMaxAge <= 0 {
		c.StreamMaxAge = 24 * time.Hour
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// NATS is a JetStream backed transport.
type NATS struct {
	publisher  message.Publisher
	subscriber message.Subscriber
}

var _ Transport = (*NATS)(nil)

// NewNATS ensures the job stream exists and connects a durable publisher and
// queue-group subscriber to it.
func NewNATS(ctx context.Context, cfg NATSConfig, logger watermill.LoggerAdapter) (*NATS, error) {
	cfg = cfg.withDefaults()

	if err := ensureStream(ctx, cfg); err != nil {
		return nil, err
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: queueGroup,
		SubscribersCount: cfg.Subscribers,
		AckWaitTimeout:   cfg.AckWait,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			AckAsync:      false,
			DurablePrefix: durableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(StreamName),
				natsgo.MaxDeliver(cfg.MaxDeliver),
				natsgo.AckWait(cfg.AckWait),
				natsgo.DeliverNew(),
			},
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	return &NATS{publisher: pub, subscriber: sub}, nil
}

// ensureStream creates the job stream or updates it in place.
func ensureStream(ctx context.Context, cfg NATSConfig) error {
	nc, err := natsgo.Connect(cfg.URL, natsgo.Timeout(cfg.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("open JetStream: %w", err)
	}

	streamCfg := jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{streamSubject},
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    cfg.StreamMaxAge,
		Storage:   jetstream.FileStorage,
	}

	_, err = js.Stream(ctx, StreamName)
	switch {
	case err == nil:
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("update stream %s: %w", StreamName, err)
		}
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := js.CreateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("create stream %s: %w", StreamName, err)
		}
	default:
		return fmt.Errorf("check stream %s: %w", StreamName, err)
	}
	return nil
}

// Publish sends messages to the stream.
func (n *NATS) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		// JetStream drops a repeated Nats-Msg-Id inside the dedup window.
		if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
			msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
		}
	}
	return n.publisher.Publish(topic, messages...)
}

// Subscribe consumes topic through the durable queue group.
func (n *NATS) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return n.subscriber.Subscribe(ctx, topic)
}

// Close closes the subscriber, then the publisher.
func (n *NATS) Close() error {
	return errors.Join(n.subscriber.Close(), n.publisher.Close())
}
