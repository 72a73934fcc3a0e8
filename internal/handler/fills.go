package handler

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/store"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fillSide describes one subaccount's side of a match.
type fillSide struct {
	subaccount event.SubaccountID
	side       event.Side
	liquidity  model.Liquidity
	fillType   model.FillType
	order      *event.Order // nil for liquidation takers and deleveraging
	fee        decimal.Decimal
}

func (b base) fillID(liquidity model.Liquidity) uuid.UUID {
	return event.DeterministicID(b.eventIDHex(), string(liquidity))
}

// applyFill writes one fill and the running totals derived from it. When the
// fill row already exists the block is a replay: nothing else is written and
// inserted is false.
func (b base) applyFill(
	ctx context.Context,
	tx store.Tx,
	agg *outbound.Aggregator,
	market model.PerpetualMarket,
	fs fillSide,
	amount, price decimal.Decimal,
) (fill model.Fill, inserted bool, err error) {
	subaccountID := fs.subaccount.UUID()
	fill = model.Fill{
		ID:              b.fillID(fs.liquidity),
		SubaccountID:    subaccountID,
		Side:            string(fs.side),
		Liquidity:       fs.liquidity,
		Type:            fs.fillType,
		ClobPairID:      market.ClobPairID,
		Size:            amount,
		Price:           price,
		Fee:             fs.fee,
		EventID:         b.eventID(),
		CreatedAt:       b.time(),
		CreatedAtHeight: b.height(),
	}
	if fs.order != nil {
		orderID := fs.order.OrderID.UUID()
		fill.OrderID = &orderID
	}

	inserted, err = tx.InsertFill(ctx, fill)
	if err != nil {
		return fill, false, err
	}
	if !inserted {
		l := b.logger()
		l.Debug().Str("fill_id", fill.ID.String()).Msg("fill already indexed, skipping")
		return fill, false, nil
	}

	if err := tx.UpsertSubaccount(ctx, model.Subaccount{
		ID:              subaccountID,
		Address:         fs.subaccount.Owner,
		Number:          fs.subaccount.Number,
		UpdatedAt:       b.time(),
		UpdatedAtHeight: b.height(),
	}); err != nil {
		return fill, true, err
	}

	contents := outbound.SubaccountContents{
		Fills:       []outbound.FillContent{fillContent(fill, market.Ticker)},
		BlockHeight: b.height(),
	}

	if fs.order != nil {
		order, err := b.updateOrder(ctx, tx, fs.order, amount, price)
		if err != nil {
			return fill, true, err
		}
		contents.Orders = []outbound.OrderContent{orderContent(order)}
		agg.AddOrderUpdateMessage(b.pos(), outbound.OrderUpdateMessage{
			OrderID:     order.ID.String(),
			TotalFilled: order.TotalFilled.String(),
			Status:      string(order.Status),
			BlockHeight: b.height(),
		})
	}

	position, err := b.updatePosition(ctx, tx, subaccountID, market.ID, fs.side.Sign().Mul(amount))
	if err != nil {
		return fill, true, err
	}
	contents.PerpetualPositions = []outbound.PerpetualPositionContent{{
		PerpetualID:  position.PerpetualID,
		Market:       market.Ticker,
		Side:         positionSide(position.Size),
		Size:         position.Size.String(),
		FundingIndex: position.FundingIndex.String(),
	}}

	msg := outbound.SubaccountMessage{
		BlockHeight:      b.height(),
		TransactionIndex: b.ev.TransactionIndex,
		EventIndex:       b.ev.EventIndex,
		SubaccountID:     fs.subaccount,
		Contents:         contents,
		Version:          outbound.SubaccountsVersion,
	}
	if fill.OrderID != nil {
		agg.AddFillSubaccountMessage(b.pos(), fill.OrderID.String(), msg)
	} else {
		agg.AddSubaccountMessage(b.pos(), msg)
	}
	return fill, true, nil
}

// updateOrder adds amount to the order's running total_filled.
func (b base) updateOrder(ctx context.Context, tx store.Tx, o *event.Order, amount, fillPrice decimal.Decimal) (model.Order, error) {
	id := o.OrderID.UUID()
	size, err := decimal.NewFromString(o.Size)
	if err != nil {
		return model.Order{}, fmt.Errorf("order %s size: %w", id, err)
	}
	price := fillPrice
	if o.Price != "" {
		if price, err = decimal.NewFromString(o.Price); err != nil {
			return model.Order{}, fmt.Errorf("order %s price: %w", id, err)
		}
	}

	existing, err := tx.FindOrder(ctx, id)
	if err != nil {
		return model.Order{}, err
	}
	totalFilled := amount
	if existing != nil {
		totalFilled = existing.TotalFilled.Add(amount)
	}
	status := model.OrderStatusOpen
	if totalFilled.GreaterThanOrEqual(size) {
		status = model.OrderStatusFilled
	}

	order := model.Order{
		ID:              id,
		SubaccountID:    o.OrderID.SubaccountID.UUID(),
		ClientID:        o.OrderID.ClientID,
		ClobPairID:      o.OrderID.ClobPairID,
		OrderFlags:      o.OrderID.OrderFlags,
		Side:            string(o.Side),
		Size:            size,
		TotalFilled:     totalFilled,
		Price:           price,
		Status:          status,
		UpdatedAt:       b.time(),
		UpdatedAtHeight: b.height(),
	}
	if err := tx.UpsertOrder(ctx, order); err != nil {
		return model.Order{}, err
	}
	return order, nil
}

// updatePosition adds delta to the subaccount's signed position size.
func (b base) updatePosition(ctx context.Context, tx store.Tx, subaccountID uuid.UUID, perpetualID uint32, delta decimal.Decimal) (model.PerpetualPosition, error) {
	existing, err := tx.FindPerpetualPosition(ctx, subaccountID, perpetualID)
	if err != nil {
		return model.PerpetualPosition{}, err
	}
	position := model.PerpetualPosition{
		SubaccountID:    subaccountID,
		PerpetualID:     perpetualID,
		Size:            delta,
		FundingIndex:    decimal.Zero,
		UpdatedAtHeight: b.height(),
	}
	if existing != nil {
		position.Size = existing.Size.Add(delta)
		position.FundingIndex = existing.FundingIndex
	}
	if err := tx.UpsertPerpetualPosition(ctx, position); err != nil {
		return model.PerpetualPosition{}, err
	}
	return position, nil
}

// tradeMessage builds the public trade of a match from the taker's fill.
func (b base) tradeMessage(market model.PerpetualMarket, taker model.Fill) outbound.TradeMessage {
	return outbound.TradeMessage{
		BlockHeight: b.height(),
		ClobPairID:  market.ClobPairID,
		Trades: []outbound.TradeContent{{
			ID:        taker.ID.String(),
			Size:      taker.Size.String(),
			Price:     taker.Price.String(),
			Side:      taker.Side,
			CreatedAt: b.timeString(),
			Type:      string(taker.Type),
		}},
		Version: outbound.TradesVersion,
	}
}

func fillContent(f model.Fill, ticker string) outbound.FillContent {
	c := outbound.FillContent{
		ID:          f.ID.String(),
		Side:        f.Side,
		Liquidity:   string(f.Liquidity),
		Type:        string(f.Type),
		ClobPairID:  f.ClobPairID,
		Ticker:      ticker,
		Size:        f.Size.String(),
		Price:       f.Price.String(),
		Fee:         f.Fee.String(),
		CreatedAt:   f.CreatedAt.Format(time.RFC3339Nano),
		BlockHeight: f.CreatedAtHeight,
	}
	if f.OrderID != nil {
		c.OrderID = f.OrderID.String()
	}
	return c
}

func orderContent(o model.Order) outbound.OrderContent {
	return outbound.OrderContent{
		ID:          o.ID.String(),
		ClientID:    o.ClientID,
		ClobPairID:  o.ClobPairID,
		Side:        o.Side,
		Size:        o.Size.String(),
		TotalFilled: o.TotalFilled.String(),
		Price:       o.Price.String(),
		Status:      string(o.Status),
	}
}
