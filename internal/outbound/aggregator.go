// Package outbound collects the downstream messages of one block and
// publishes them after the block commits.
package outbound

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/observability"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxMessageBytes bounds the encoded size of one publish batch.
const DefaultMaxMessageBytes = 1 << 20

// Publisher delivers a batch of messages of one topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs []Message) error
}

// Config controls how an Aggregator flushes.
type Config struct {
	MaxMessageBytes int
	// SkipWebsocketTopics publishes only to-vulcan.
	SkipWebsocketTopics bool
}

type entry struct {
	topic   string
	key     []byte
	pos     event.Position
	payload interface{}
	// fillOrderID is set on subaccount messages produced by a fill.
	fillOrderID string
}

type tradeEntry struct {
	pos event.Position
	msg TradeMessage
}

// Aggregator is the append-only message buffer of one block. Handlers of the
// same frontier append concurrently.
type Aggregator struct {
	mu      sync.Mutex
	height  string
	entries []entry
	trades  []tradeEntry

	cfg     Config
	once    sync.Once
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewAggregator(height string, cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Aggregator {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return &Aggregator{
		height:  height,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With().Str("height", height).Logger(),
	}
}

func (a *Aggregator) Height() string {
	return a.height
}

func (a *Aggregator) add(topic string, key []byte, pos event.Position, payload interface{}) {
	a.mu.Lock()
	a.entries = append(a.entries, entry{topic: topic, key: key, pos: pos, payload: payload})
	a.mu.Unlock()
}

func (a *Aggregator) AddSubaccountMessage(pos event.Position, msg SubaccountMessage) {
	a.add(TopicSubaccounts, []byte(msg.SubaccountID.UUID().String()), pos, msg)
}

// AddFillSubaccountMessage buffers the subaccount message of a fill against
// orderID. Fill messages of the same order in a block are published as one.
func (a *Aggregator) AddFillSubaccountMessage(pos event.Position, orderID string, msg SubaccountMessage) {
	a.mu.Lock()
	a.entries = append(a.entries, entry{
		topic:       TopicSubaccounts,
		key:         []byte(msg.SubaccountID.UUID().String()),
		pos:         pos,
		payload:     msg,
		fillOrderID: orderID,
	})
	a.mu.Unlock()
}

func (a *Aggregator) AddMarketMessage(pos event.Position, msg MarketMessage) {
	a.add(TopicMarkets, nil, pos, msg)
}

func (a *Aggregator) AddTradeMessage(pos event.Position, msg TradeMessage) {
	a.mu.Lock()
	a.trades = append(a.trades, tradeEntry{pos: pos, msg: msg})
	a.mu.Unlock()
}

func (a *Aggregator) AddOrderUpdateMessage(pos event.Position, msg OrderUpdateMessage) {
	a.add(TopicVulcan, []byte(msg.OrderID), pos, msg)
}

func (a *Aggregator) AddCandleMessage(pos event.Position, ticker string, msg CandleMessage) {
	a.add(TopicCandles, []byte(ticker), pos, msg)
}

func (a *Aggregator) AddBlockHeightMessage(pos event.Position, msg BlockHeightMessage) {
	a.add(TopicBlockHeight, nil, pos, msg)
}

// TradeMessages returns the block's trade messages in chain order, one per
// handler append (not yet merged per clob pair).
func (a *Aggregator) TradeMessages() []TradeMessage {
	a.mu.Lock()
	trades := append([]tradeEntry(nil), a.trades...)
	a.mu.Unlock()

	sort.SliceStable(trades, func(i, j int) bool { return trades[i].pos.Less(trades[j].pos) })
	out := make([]TradeMessage, len(trades))
	for i, t := range trades {
		out[i] = t.msg
	}
	return out
}

// Len returns the number of buffered messages, trades included.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries) + len(a.trades)
}

// Messages encodes the buffered messages per topic: sorted by block position,
// trades merged per clob pair, filtered by SkipWebsocketTopics.
func (a *Aggregator) Messages() (map[string][]Message, error) {
	a.mu.Lock()
	entries := mergeFills(append([]entry(nil), a.entries...))
	trades := append([]tradeEntry(nil), a.trades...)
	a.mu.Unlock()

	for _, t := range mergeTrades(trades) {
		entries = append(entries, entry{
			topic:   TopicTrades,
			key:     []byte(fmt.Sprint(t.msg.ClobPairID)),
			pos:     t.pos,
			payload: t.msg,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].pos.Less(entries[j].pos) })

	out := make(map[string][]Message)
	for _, e := range entries {
		if a.cfg.SkipWebsocketTopics && e.topic != TopicVulcan {
			continue
		}
		value, err := json.Marshal(e.payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s message at %s: %w", e.topic, e.pos, err)
		}
		out[e.topic] = append(out[e.topic], Message{
			Topic:    e.topic,
			Key:      e.key,
			Value:    value,
			Headers:  map[string]string{"block-height": a.height},
			Position: e.pos,
		})
	}
	return out, nil
}

// mergeFills folds the fill messages of each order into one message at the
// position of the order's last fill. It carries every fill in chain order and
// the order and position state of the last fill.
func mergeFills(entries []entry) []entry {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].pos.Less(entries[j].pos) })

	last := make(map[string]int)
	for i, e := range entries {
		if e.fillOrderID != "" {
			last[e.fillOrderID] = i
		}
	}

	fills := make(map[string][]FillContent)
	out := entries[:0]
	for i, e := range entries {
		if e.fillOrderID == "" {
			out = append(out, e)
			continue
		}
		msg := e.payload.(SubaccountMessage)
		fills[e.fillOrderID] = append(fills[e.fillOrderID], msg.Contents.Fills...)
		if last[e.fillOrderID] != i {
			continue
		}
		msg.Contents.Fills = fills[e.fillOrderID]
		e.payload = msg
		out = append(out, e)
	}
	return out
}

// mergeTrades folds trade messages into one per clob pair, in order of the
// first trade of each pair. Trades keep chain order inside a message.
func mergeTrades(trades []tradeEntry) []tradeEntry {
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].pos.Less(trades[j].pos) })

	idx := make(map[uint32]int)
	var merged []tradeEntry
	for _, t := range trades {
		i, ok := idx[t.msg.ClobPairID]
		if !ok {
			idx[t.msg.ClobPairID] = len(merged)
			msg := t.msg
			msg.Trades = append([]TradeContent(nil), t.msg.Trades...)
			merged = append(merged, tradeEntry{pos: t.pos, msg: msg})
			continue
		}
		merged[i].msg.Trades = append(merged[i].msg.Trades, t.msg.Trades...)
	}
	return merged
}

// Batch splits msgs into consecutive chunks whose key+value size stays under
// maxBytes. A single message larger than maxBytes travels alone.
func Batch(msgs []Message, maxBytes int) [][]Message {
	var batches [][]Message
	var cur []Message
	size := 0
	for _, m := range msgs {
		n := len(m.Key) + len(m.Value)
		if len(cur) > 0 && size+n > maxBytes {
			batches = append(batches, cur)
			cur, size = nil, 0
		}
		cur = append(cur, m)
		size += n
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// Publish flushes every topic once. Later calls are no-ops. Failures are
// logged and counted; they never reach the block path.
func (a *Aggregator) Publish(ctx context.Context, pub Publisher) {
	a.once.Do(func() {
		a.publish(ctx, pub)
	})
}

func (a *Aggregator) publish(ctx context.Context, pub Publisher) {
	byTopic, err := a.Messages()
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to encode outbound messages")
		return
	}

	topics := make([]string, 0, len(byTopic))
	for t := range byTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	for _, topic := range topics {
		for _, batch := range Batch(byTopic[topic], a.cfg.MaxMessageBytes) {
			if err := pub.Publish(ctx, topic, batch); err != nil {
				a.logger.Error().Err(err).
					Str("topic", topic).
					Int("messages", len(batch)).
					Msg("failed to publish outbound messages")
				if a.metrics != nil {
					a.metrics.PublishErrors.WithLabelValues(topic).Inc()
				}
				continue
			}
			if a.metrics != nil {
				a.metrics.OutboundMessages.WithLabelValues(topic).Add(float64(len(batch)))
			}
		}
	}
}
