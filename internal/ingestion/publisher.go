package ingestion

import (
	"PerpIndexer/internal/outbound"
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultOutboundStream holds every downstream topic.
const DefaultOutboundStream = "ENDER_OUTBOUND"

// KeyHeader carries the partition key of an outbound message.
const KeyHeader = "Ender-Key"

// msgPublisher is the part of jetstream.JetStream the publisher relies on.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher sends committed block messages to JetStream, one subject per
// topic. Each message carries a deterministic Nats-Msg-Id so a replayed
// block is deduplicated by the stream.
type NATSPublisher struct {
	js msgPublisher
}

var _ outbound.Publisher = (*NATSPublisher)(nil)

func NewNATSPublisher(js msgPublisher) *NATSPublisher {
	return &NATSPublisher{js: js}
}

// Publish sends every message of the batch in order. It keeps going after a
// failed message and returns all failures joined.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, msgs []outbound.Message) error {
	var errs []error
	for _, m := range msgs {
		natsMsg := &nats.Msg{
			Subject: topic,
			Data:    m.Value,
			Header:  nats.Header{},
		}
		for k, v := range m.Headers {
			natsMsg.Header.Set(k, v)
		}
		if len(m.Key) > 0 {
			natsMsg.Header.Set(KeyHeader, string(m.Key))
		}

		if _, err := p.js.PublishMsg(ctx, natsMsg, jetstream.WithMsgID(m.ID())); err != nil {
			errs = append(errs, fmt.Errorf("publish %s message at %s: %w", topic, m.Position, err))
		}
	}
	return errors.Join(errs...)
}
