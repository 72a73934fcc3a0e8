package handler

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/store"
	"context"
)

// OrderFillHandler indexes both sides of a match between a resting maker
// order and a taker order or liquidation order.
type OrderFillHandler struct {
	base
	fill   *event.OrderFill
	market model.PerpetualMarket
}

func NewOrderFillHandler(block *event.Block, ev event.Event, deps Deps) Handler {
	return &OrderFillHandler{base: base{block: block, ev: ev, deps: deps}}
}

func (h *OrderFillHandler) Parse(data []byte) error {
	fill, err := event.ParseOrderFill(data)
	if err != nil {
		return err
	}
	market, ok := h.deps.Markets.ByClobPair(fill.ClobPairID())
	if !ok {
		return event.NewParseError(event.SubtypeOrderFill, "clob pair %d not found", fill.ClobPairID())
	}
	h.fill = fill
	h.market = market
	return nil
}

func (h *OrderFillHandler) ParallelizationIDs() []string {
	clobPairID := h.fill.ClobPairID()
	maker := h.fill.MakerOrder.OrderID.SubaccountID.UUID()
	taker := h.fill.TakerSubaccount().UUID()

	ids := []string{
		orderFillKey(maker, clobPairID),
		orderFillKey(taker, clobPairID),
		subaccountOrderFillKey(maker),
		subaccountOrderFillKey(taker),
	}
	makerOrder := h.fill.MakerOrder.OrderID
	if h.fill.IsLiquidation() || makerOrder.IsStateful() {
		ids = append(ids, statefulOrderFillKey(makerOrder.UUID()))
	}
	if h.fill.Order != nil && h.fill.Order.OrderID.IsStateful() {
		ids = append(ids, statefulOrderFillKey(h.fill.Order.OrderID.UUID()))
	}
	return ids
}

func (h *OrderFillHandler) ApplyToStore(ctx context.Context, tx store.Tx, agg *outbound.Aggregator) error {
	amount, price := h.fill.Amount(), h.fill.Price()

	makerType := model.FillTypeLimit
	if h.fill.IsLiquidation() {
		makerType = model.FillTypeLiquidation
	}
	maker := fillSide{
		subaccount: h.fill.MakerOrder.OrderID.SubaccountID,
		side:       h.fill.MakerOrder.Side,
		liquidity:  model.LiquidityMaker,
		fillType:   makerType,
		order:      h.fill.MakerOrder,
		fee:        h.fill.MakerFeeAmount(),
	}
	if _, _, err := h.applyFill(ctx, tx, agg, h.market, maker, amount, price); err != nil {
		return err
	}

	taker := fillSide{
		subaccount: h.fill.TakerSubaccount(),
		side:       h.fill.TakerSide(),
		liquidity:  model.LiquidityTaker,
		fillType:   model.FillTypeLimit,
		order:      h.fill.Order,
		fee:        h.fill.TakerFeeAmount(),
	}
	if h.fill.IsLiquidation() {
		taker.fillType = model.FillTypeLiquidated
	}
	takerFill, inserted, err := h.applyFill(ctx, tx, agg, h.market, taker, amount, price)
	if err != nil {
		return err
	}
	if inserted {
		agg.AddTradeMessage(h.pos(), h.tradeMessage(h.market, takerFill))
	}
	return nil
}
