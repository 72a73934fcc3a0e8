package handler

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/store"
	"context"

	"github.com/shopspring/decimal"
)

// DeleveragingHandler indexes a deleveraging match: the liquidated
// subaccount trades against an offsetting subaccount at a fixed price.
type DeleveragingHandler struct {
	base
	deleveraging *event.Deleveraging
	market       model.PerpetualMarket
}

func NewDeleveragingHandler(block *event.Block, ev event.Event, deps Deps) Handler {
	return &DeleveragingHandler{base: base{block: block, ev: ev, deps: deps}}
}

func (h *DeleveragingHandler) Parse(data []byte) error {
	d, err := event.ParseDeleveraging(data)
	if err != nil {
		return err
	}
	market, ok := h.deps.Markets.ByID(d.PerpetualID)
	if !ok {
		return event.NewParseError(event.SubtypeDeleveraging, "perpetual %d not found", d.PerpetualID)
	}
	h.deleveraging = d
	h.market = market
	return nil
}

func (h *DeleveragingHandler) ParallelizationIDs() []string {
	liquidated := h.deleveraging.Liquidated.UUID()
	offsetting := h.deleveraging.Offsetting.UUID()
	perpetualID := h.deleveraging.PerpetualID
	return []string{
		deleveragingKey(liquidated, perpetualID),
		deleveragingKey(offsetting, perpetualID),
		subaccountOrderFillKey(liquidated),
		subaccountOrderFillKey(offsetting),
	}
}

func (h *DeleveragingHandler) ApplyToStore(ctx context.Context, tx store.Tx, agg *outbound.Aggregator) error {
	d := h.deleveraging
	amount, price := d.Amount(), d.FillPrice()

	liquidated := fillSide{
		subaccount: *d.Liquidated,
		side:       d.LiquidatedSide(),
		liquidity:  model.LiquidityTaker,
		fillType:   model.FillTypeDeleveraged,
		fee:        decimal.Zero,
	}
	liquidatedFill, inserted, err := h.applyFill(ctx, tx, agg, h.market, liquidated, amount, price)
	if err != nil {
		return err
	}

	offsetting := fillSide{
		subaccount: *d.Offsetting,
		side:       d.LiquidatedSide().Opposite(),
		liquidity:  model.LiquidityMaker,
		fillType:   model.FillTypeOffsetting,
		fee:        decimal.Zero,
	}
	if _, _, err := h.applyFill(ctx, tx, agg, h.market, offsetting, amount, price); err != nil {
		return err
	}

	if inserted {
		agg.AddTradeMessage(h.pos(), h.tradeMessage(h.market, liquidatedFill))
	}
	return nil
}
