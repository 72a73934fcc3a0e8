// Package handler turns protocol events into store writes and downstream
// messages. The block engine only sees the Handler contract; each subtype's
// business logic lives behind it.
package handler

import (
	"PerpIndexer/internal/cache"
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/reference"
	"PerpIndexer/internal/store"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Handler processes one event of a block. Lifecycle: constructed, parsed,
// keys declared, applied once, discarded.
type Handler interface {
	// Subtype names the event kind for logs and metrics.
	Subtype() string
	// Parse decodes and validates the payload. Malformed or unresolvable
	// data returns *event.ParseError.
	Parse(data []byte) error
	// ParallelizationIDs returns the resource keys the handler touches.
	// Handlers sharing a key never run concurrently. Side-effect free.
	ParallelizationIDs() []string
	// ApplyToStore writes through tx and appends downstream messages.
	ApplyToStore(ctx context.Context, tx store.Tx, agg *outbound.Aggregator) error
}

// Deps are the shared read-side dependencies handed to every handler.
type Deps struct {
	Markets *reference.PerpetualMarkets
	Prices  *cache.PriceCache
	Logger  zerolog.Logger
}

// Factory constructs an unparsed handler for ev.
type Factory func(block *event.Block, ev event.Event, deps Deps) Handler

// ErrUnknownSubtype is returned by Registry.New for subtypes without a factory.
var ErrUnknownSubtype = errors.New("unknown event subtype")

// Registry maps subtypes to handler factories.
type Registry struct {
	deps      Deps
	factories map[string]Factory
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, factories: make(map[string]Factory)}
}

// Register adds a factory. Registering a subtype twice is a programming
// error and panics at startup.
func (r *Registry) Register(subtype string, f Factory) {
	if _, ok := r.factories[subtype]; ok {
		panic(fmt.Sprintf("handler: subtype %q registered twice", subtype))
	}
	r.factories[subtype] = f
}

// New builds and parses the handler of ev.
func (r *Registry) New(block *event.Block, ev event.Event) (Handler, error) {
	f, ok := r.factories[ev.Subtype]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubtype, ev.Subtype)
	}
	h := f(block, ev, r.deps)
	if err := h.Parse(ev.Data); err != nil {
		return nil, err
	}
	return h, nil
}

// Subtypes lists the registered subtypes.
func (r *Registry) Subtypes() []string {
	out := make([]string, 0, len(r.factories))
	for st := range r.factories {
		out = append(out, st)
	}
	return out
}

// DefaultRegistry registers every handler the indexer ships with.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry(deps)
	r.Register(event.SubtypeMarket, NewMarketPriceUpdateHandler)
	r.Register(event.SubtypeOrderFill, NewOrderFillHandler)
	r.Register(event.SubtypeDeleveraging, NewDeleveragingHandler)
	r.Register(event.SubtypeTransfer, NewTransferHandler)
	r.Register(event.SubtypeSubaccountUpdate, NewSubaccountUpdateHandler)
	r.Register(event.SubtypeFundingValues, NewFundingHandler)
	return r
}

// base carries the block context shared by every handler.
type base struct {
	block *event.Block
	ev    event.Event
	deps  Deps
}

func (b base) Subtype() string {
	return b.ev.Subtype
}

func (b base) pos() event.Position {
	return b.block.PositionOf(b.ev)
}

func (b base) height() string {
	return b.block.Height
}

func (b base) time() time.Time {
	return b.block.Time.UTC()
}

func (b base) timeString() string {
	return b.time().Format(time.RFC3339Nano)
}

func (b base) eventID() []byte {
	return event.EventID(b.pos())
}

func (b base) eventIDHex() string {
	return event.EventIDHex(b.pos())
}

func (b base) logger() zerolog.Logger {
	return b.deps.Logger.With().
		Str("subtype", b.ev.Subtype).
		Str("position", b.pos().String()).
		Logger()
}
