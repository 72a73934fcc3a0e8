package handler

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/store"
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// FundingHandler records settled funding indexes together with the oracle
// price they settled against. Premium samples are acknowledged and dropped.
type FundingHandler struct {
	base
	values  *event.FundingValues
	markets map[uint32]model.PerpetualMarket
}

func NewFundingHandler(block *event.Block, ev event.Event, deps Deps) Handler {
	return &FundingHandler{base: base{block: block, ev: ev, deps: deps}}
}

func (h *FundingHandler) Parse(data []byte) error {
	v, err := event.ParseFundingValues(data)
	if err != nil {
		return err
	}
	markets := make(map[uint32]model.PerpetualMarket, len(v.Updates))
	for _, u := range v.Updates {
		m, ok := h.deps.Markets.ByID(u.PerpetualID)
		if !ok {
			return event.NewParseError(event.SubtypeFundingValues, "perpetual %d not found", u.PerpetualID)
		}
		markets[u.PerpetualID] = m
	}
	h.values = v
	h.markets = markets
	return nil
}

// ParallelizationIDs includes the market key of every perpetual so funding
// reads the oracle price written by earlier price updates of the block.
func (h *FundingHandler) ParallelizationIDs() []string {
	ids := make([]string, 0, 2*len(h.values.Updates))
	for _, u := range h.values.Updates {
		ids = append(ids, fundingKey(u.PerpetualID), marketKey(h.markets[u.PerpetualID].MarketID))
	}
	return ids
}

func (h *FundingHandler) ApplyToStore(ctx context.Context, tx store.Tx, agg *outbound.Aggregator) error {
	if h.values.Type == event.FundingTypePremiumSample {
		l := h.logger()
		l.Debug().Int("updates", len(h.values.Updates)).Msg("premium samples ignored")
		return nil
	}

	funding := make(map[string]outbound.FundingContent, len(h.values.Updates))
	for _, u := range h.values.Updates {
		market := h.markets[u.PerpetualID]
		// Cache miss is a hard error: the block fails and the caches resync.
		price, err := h.deps.Prices.Get(market.MarketID)
		if err != nil {
			return fmt.Errorf("funding for perpetual %d: %w", u.PerpetualID, err)
		}
		rate, err := decimal.NewFromString(u.Rate)
		if err != nil {
			return event.WrapParseError(event.SubtypeFundingValues, err, "rate")
		}
		index, err := decimal.NewFromString(u.FundingIndex)
		if err != nil {
			return event.WrapParseError(event.SubtypeFundingValues, err, "funding_index")
		}

		if err := tx.InsertFundingIndexUpdate(ctx, model.FundingIndexUpdate{
			ID:                event.DeterministicID(fmt.Sprint(u.PerpetualID), h.eventIDHex()),
			PerpetualID:       u.PerpetualID,
			Rate:              rate,
			FundingIndex:      index,
			OraclePrice:       price,
			EventID:           h.eventID(),
			EffectiveAt:       h.time(),
			EffectiveAtHeight: h.height(),
		}); err != nil {
			return err
		}
		funding[market.Ticker] = outbound.FundingContent{
			PerpetualID:  u.PerpetualID,
			Rate:         rate.String(),
			FundingIndex: index.String(),
			OraclePrice:  price.String(),
		}
	}

	agg.AddMarketMessage(h.pos(), outbound.MarketMessage{
		Contents: outbound.MarketContents{Funding: funding},
		Version:  outbound.MarketsVersion,
	})
	return nil
}
