package ingestion

import (
	"PerpIndexer/internal/event"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// EncodeBlock is the inverse of DecodeBlock. It backs replay tooling and tests.
func EncodeBlock(b *event.Block) ([]byte, error) {
	var out []byte

	if b.Height != "" {
		h, err := strconv.ParseUint(b.Height, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("encode block height %q: %w", b.Height, err)
		}
		out = protowire.AppendTag(out, blockHeightField, protowire.VarintType)
		out = protowire.AppendVarint(out, h)
	}

	if b.Time != nil {
		ts, err := proto.Marshal(timestamppb.New(*b.Time))
		if err != nil {
			return nil, fmt.Errorf("encode block time: %w", err)
		}
		out = protowire.AppendTag(out, blockTimeField, protowire.BytesType)
		out = protowire.AppendBytes(out, ts)
	}

	for _, ev := range b.Events {
		out = protowire.AppendTag(out, blockEventsField, protowire.BytesType)
		out = protowire.AppendBytes(out, encodeEvent(ev))
	}

	for _, h := range b.TxHashes {
		out = protowire.AppendTag(out, blockTxHashesField, protowire.BytesType)
		out = protowire.AppendString(out, h)
	}
	return out, nil
}

func encodeEvent(ev event.Event) []byte {
	var out []byte
	out = protowire.AppendTag(out, eventSubtypeField, protowire.BytesType)
	out = protowire.AppendString(out, ev.Subtype)

	if ev.IsBlockEvent() {
		out = protowire.AppendTag(out, eventBlockEventField, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(ev.BlockEvent))
	} else {
		out = protowire.AppendTag(out, eventTxIndexField, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(uint32(ev.TransactionIndex)))
	}

	out = protowire.AppendTag(out, eventIndexField, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(ev.EventIndex))
	out = protowire.AppendTag(out, eventVersionField, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(ev.Version))
	out = protowire.AppendTag(out, eventDataField, protowire.BytesType)
	out = protowire.AppendBytes(out, ev.Data)
	return out
}
