package ingestion

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// RawBlock is one undecoded block message taken from the inbound stream.
type RawBlock struct {
	Subject     string
	Data        []byte
	PublishedAt time.Time // zero when the bus did not report it
	Deliveries  uint64
}

// BlockHandler processes one block. A nil return acknowledges the message;
// any error leaves it for redelivery.
type BlockHandler func(ctx context.Context, raw RawBlock) error

// SubscriberConfig names the durable consumer of the inbound block stream.
type SubscriberConfig struct {
	Stream     string
	Subject    string
	Consumer   string
	AckWait    time.Duration
	MaxDeliver int           // -1 redelivers forever
	NakDelay   time.Duration // backoff before a failed block is redelivered
}

func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		Stream:     "ENDER_BLOCKS",
		Subject:    "to-ender",
		Consumer:   "ender",
		AckWait:    5 * time.Minute,
		MaxDeliver: -1,
		NakDelay:   time.Second,
	}
}

// ackable is the part of jetstream.Msg the subscriber relies on.
type ackable interface {
	Subject() string
	Data() []byte
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	NakWithDelay(delay time.Duration) error
}

// BlockSubscriber feeds the inbound block stream to a BlockHandler one
// message at a time. The consumer allows a single unacknowledged message,
// so block N+1 is never delivered before block N is acked.
type BlockSubscriber struct {
	js       jetstream.JetStream
	cfg      SubscriberConfig
	handle   BlockHandler
	logger   zerolog.Logger
	consumer jetstream.ConsumeContext

	// mu is held while a block is handled; Stop takes it to wait out the
	// in-flight block.
	mu      sync.Mutex
	stopped bool
}

func NewBlockSubscriber(js jetstream.JetStream, cfg SubscriberConfig, handle BlockHandler, logger zerolog.Logger) *BlockSubscriber {
	return &BlockSubscriber{
		js:     js,
		cfg:    cfg,
		handle: handle,
		logger: logger,
	}
}

// Subscribe creates or updates the durable consumer and starts consuming.
func (s *BlockSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       s.cfg.Consumer,
		FilterSubject: s.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.cfg.AckWait,
		MaxDeliver:    s.cfg.MaxDeliver,
		MaxAckPending: 1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", s.cfg.Consumer, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		s.handleMsg(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", s.cfg.Consumer, err)
	}
	s.consumer = cc

	s.logger.Info().
		Str("stream", s.cfg.Stream).
		Str("subject", s.cfg.Subject).
		Str("consumer", s.cfg.Consumer).
		Msg("subscribed to block stream")
	return nil
}

func (s *BlockSubscriber) handleMsg(ctx context.Context, msg ackable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		// Left unacked; redelivered after AckWait.
		return
	}

	raw := RawBlock{Subject: msg.Subject(), Data: msg.Data()}
	if meta, err := msg.Metadata(); err == nil {
		raw.PublishedAt = meta.Timestamp
		raw.Deliveries = meta.NumDelivered
	}

	if err := s.handle(ctx, raw); err != nil {
		s.logger.Warn().Err(err).Uint64("deliveries", raw.Deliveries).Msg("block not acknowledged")
		if nakErr := msg.NakWithDelay(s.cfg.NakDelay); nakErr != nil {
			s.logger.Error().Err(nakErr).Msg("failed to nak block message")
		}
		return
	}
	if err := msg.Ack(); err != nil {
		s.logger.Error().Err(err).Msg("failed to ack block message")
	}
}

// Stop stops consuming and waits for the in-flight block, if any, to be
// acked or nacked. Messages delivered afterwards are left for redelivery.
func (s *BlockSubscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.logger.Info().Msg("block subscriber stopped")
}

// EnsureStreams creates the inbound block stream and the outbound topic
// stream when they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, inbound SubscriberConfig, outboundStream string, topics []string) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      inbound.Stream,
			Subjects:  []string{inbound.Subject},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:       outboundStream,
			Subjects:   topics,
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Duplicates: 10 * time.Minute,
			Replicas:   1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("ender"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
