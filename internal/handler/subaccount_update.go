package handler

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/store"
	"context"

	"github.com/shopspring/decimal"
)

// SubaccountUpdateHandler overwrites a subaccount's positions with the
// settled values reported by the chain.
type SubaccountUpdateHandler struct {
	base
	update  *event.SubaccountUpdate
	markets map[uint32]model.PerpetualMarket
}

func NewSubaccountUpdateHandler(block *event.Block, ev event.Event, deps Deps) Handler {
	return &SubaccountUpdateHandler{base: base{block: block, ev: ev, deps: deps}}
}

func (h *SubaccountUpdateHandler) Parse(data []byte) error {
	u, err := event.ParseSubaccountUpdate(data)
	if err != nil {
		return err
	}
	markets := make(map[uint32]model.PerpetualMarket, len(u.PerpetualPositions))
	for _, p := range u.PerpetualPositions {
		m, ok := h.deps.Markets.ByID(p.PerpetualID)
		if !ok {
			return event.NewParseError(event.SubtypeSubaccountUpdate, "perpetual %d not found", p.PerpetualID)
		}
		markets[p.PerpetualID] = m
	}
	h.update = u
	h.markets = markets
	return nil
}

func (h *SubaccountUpdateHandler) ParallelizationIDs() []string {
	id := h.update.SubaccountID.UUID()
	return []string{
		subaccountUpdateKey(id),
		subaccountOrderFillKey(id),
	}
}

func (h *SubaccountUpdateHandler) ApplyToStore(ctx context.Context, tx store.Tx, agg *outbound.Aggregator) error {
	sub := *h.update.SubaccountID
	subaccountID := sub.UUID()

	if err := tx.UpsertSubaccount(ctx, model.Subaccount{
		ID:              subaccountID,
		Address:         sub.Owner,
		Number:          sub.Number,
		UpdatedAt:       h.time(),
		UpdatedAtHeight: h.height(),
	}); err != nil {
		return err
	}

	contents := outbound.SubaccountContents{BlockHeight: h.height()}

	for _, p := range h.update.PerpetualPositions {
		size, err := decimal.NewFromString(p.Size)
		if err != nil {
			return event.WrapParseError(event.SubtypeSubaccountUpdate, err, "perpetual size")
		}
		fundingIndex := decimal.Zero
		if p.FundingIndex != "" {
			if fundingIndex, err = decimal.NewFromString(p.FundingIndex); err != nil {
				return event.WrapParseError(event.SubtypeSubaccountUpdate, err, "funding index")
			}
		} else {
			existing, err := tx.FindPerpetualPosition(ctx, subaccountID, p.PerpetualID)
			if err != nil {
				return err
			}
			if existing != nil {
				fundingIndex = existing.FundingIndex
			}
		}

		if err := tx.UpsertPerpetualPosition(ctx, model.PerpetualPosition{
			SubaccountID:    subaccountID,
			PerpetualID:     p.PerpetualID,
			Size:            size,
			FundingIndex:    fundingIndex,
			UpdatedAtHeight: h.height(),
		}); err != nil {
			return err
		}
		contents.PerpetualPositions = append(contents.PerpetualPositions, outbound.PerpetualPositionContent{
			PerpetualID:  p.PerpetualID,
			Market:       h.markets[p.PerpetualID].Ticker,
			Side:         positionSide(size),
			Size:         size.String(),
			FundingIndex: fundingIndex.String(),
		})
	}

	for _, a := range h.update.AssetPositions {
		size, err := decimal.NewFromString(a.Size)
		if err != nil {
			return event.WrapParseError(event.SubtypeSubaccountUpdate, err, "asset size")
		}
		if err := tx.UpsertAssetPosition(ctx, model.AssetPosition{
			SubaccountID:    subaccountID,
			AssetID:         a.AssetID,
			Size:            size,
			UpdatedAtHeight: h.height(),
		}); err != nil {
			return err
		}
		contents.AssetPositions = append(contents.AssetPositions, outbound.AssetPositionContent{
			AssetID: a.AssetID,
			Side:    positionSide(size),
			Size:    size.String(),
		})
	}

	agg.AddSubaccountMessage(h.pos(), outbound.SubaccountMessage{
		BlockHeight:      h.height(),
		TransactionIndex: h.ev.TransactionIndex,
		EventIndex:       h.ev.EventIndex,
		SubaccountID:     sub,
		Contents:         contents,
		Version:          outbound.SubaccountsVersion,
	})
	return nil
}
