package handler

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/model"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/store"
	"context"
	"fmt"
)

// Transfer directions as seen by one end of the transfer.
const (
	transferIn  = "TRANSFER_IN"
	transferOut = "TRANSFER_OUT"
	deposit     = "DEPOSIT"
	withdrawal  = "WITHDRAWAL"
)

// TransferHandler indexes asset movements between subaccounts and wallets.
// It writes only absolute rows, so it declares no resource keys.
type TransferHandler struct {
	base
	transfer *event.Transfer
}

func NewTransferHandler(block *event.Block, ev event.Event, deps Deps) Handler {
	return &TransferHandler{base: base{block: block, ev: ev, deps: deps}}
}

func (h *TransferHandler) Parse(data []byte) error {
	t, err := event.ParseTransfer(data)
	if err != nil {
		return err
	}
	h.transfer = t
	return nil
}

func (h *TransferHandler) ParallelizationIDs() []string {
	return nil
}

func (h *TransferHandler) ApplyToStore(ctx context.Context, tx store.Tx, agg *outbound.Aggregator) error {
	t := h.transfer
	row := model.Transfer{
		ID:               event.DeterministicID(t.Sender.Key(), t.Recipient.Key(), fmt.Sprint(t.AssetID), h.eventIDHex()),
		SenderAddress:    t.Sender.Address,
		RecipientAddress: t.Recipient.Address,
		AssetID:          t.AssetID,
		Size:             t.Size(),
		EventID:          h.eventID(),
		CreatedAt:        h.time(),
		CreatedAtHeight:  h.height(),
	}
	if t.Sender.SubaccountID != nil {
		id := t.Sender.SubaccountID.UUID()
		row.SenderSubaccountID = &id
	}
	if t.Recipient.SubaccountID != nil {
		id := t.Recipient.SubaccountID.UUID()
		row.RecipientSubaccountID = &id
	}

	for _, s := range []*event.SubaccountID{t.Sender.SubaccountID, t.Recipient.SubaccountID} {
		if s == nil {
			continue
		}
		if err := tx.UpsertSubaccount(ctx, model.Subaccount{
			ID:              s.UUID(),
			Address:         s.Owner,
			Number:          s.Number,
			UpdatedAt:       h.time(),
			UpdatedAtHeight: h.height(),
		}); err != nil {
			return err
		}
	}
	if err := tx.InsertTransfer(ctx, row); err != nil {
		return err
	}

	if t.Sender.SubaccountID != nil {
		kind := transferOut
		if t.Recipient.SubaccountID == nil {
			kind = withdrawal
		}
		h.addMessage(agg, *t.Sender.SubaccountID, kind)
	}
	if t.Recipient.SubaccountID != nil {
		kind := transferIn
		if t.Sender.SubaccountID == nil {
			kind = deposit
		}
		h.addMessage(agg, *t.Recipient.SubaccountID, kind)
	}
	return nil
}

func (h *TransferHandler) addMessage(agg *outbound.Aggregator, subaccount event.SubaccountID, kind string) {
	t := h.transfer
	agg.AddSubaccountMessage(h.pos(), outbound.SubaccountMessage{
		BlockHeight:      h.height(),
		TransactionIndex: h.ev.TransactionIndex,
		EventIndex:       h.ev.EventIndex,
		SubaccountID:     subaccount,
		Contents: outbound.SubaccountContents{
			Transfers: &outbound.TransferContent{
				Sender:    accountLabel(t.Sender),
				Recipient: accountLabel(t.Recipient),
				AssetID:   t.AssetID,
				Size:      t.Size().String(),
				Type:      kind,
			},
			BlockHeight: h.height(),
		},
		Version: outbound.SubaccountsVersion,
	})
}

func accountLabel(a event.TransferAccount) string {
	if a.SubaccountID != nil {
		return a.SubaccountID.String()
	}
	return a.Address
}
