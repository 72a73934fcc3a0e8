package handler

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/store"
	"context"
	"fmt"
)

// MarketPriceUpdateHandler records a new oracle price.
type MarketPriceUpdateHandler struct {
	base
	update *event.MarketPriceUpdate
	market model.PerpetualMarket
}

func NewMarketPriceUpdateHandler(block *event.Block, ev event.Event, deps Deps) Handler {
	return &MarketPriceUpdateHandler{base: base{block: block, ev: ev, deps: deps}}
}

func (h *MarketPriceUpdateHandler) Parse(data []byte) error {
	update, err := event.ParseMarketPriceUpdate(data)
	if err != nil {
		return err
	}
	market, ok := h.deps.Markets.ByMarketID(update.MarketID)
	if !ok {
		return event.NewParseError(event.SubtypeMarket, "market %d not found", update.MarketID)
	}
	h.update = update
	h.market = market
	return nil
}

func (h *MarketPriceUpdateHandler) ParallelizationIDs() []string {
	return []string{marketKey(h.update.MarketID)}
}

func (h *MarketPriceUpdateHandler) ApplyToStore(ctx context.Context, tx store.Tx, agg *outbound.Aggregator) error {
	price := h.update.OraclePrice()
	row := model.OraclePrice{
		ID:                event.DeterministicID("oracle_price", fmt.Sprint(h.update.MarketID), h.height()),
		MarketID:          h.update.MarketID,
		Price:             price,
		EffectiveAt:       h.time(),
		EffectiveAtHeight: h.height(),
	}
	if err := tx.InsertOraclePrice(ctx, row); err != nil {
		return err
	}

	h.deps.Prices.Set(h.update.MarketID, price)

	agg.AddMarketMessage(h.pos(), outbound.MarketMessage{
		Contents: outbound.MarketContents{
			OraclePrices: map[string]outbound.OraclePriceContent{
				h.market.Ticker: {
					OraclePrice:       price.String(),
					EffectiveAt:       h.timeString(),
					EffectiveAtHeight: h.height(),
					MarketID:          h.update.MarketID,
				},
			},
		},
		Version: outbound.MarketsVersion,
	})
	return nil
}
