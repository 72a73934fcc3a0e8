package ingestion

import (
	"PerpIndexer/internal/event"
	"math"
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Field numbers of the block envelope:
//
//	Block { uint32 height = 1; Timestamp time = 2; repeated Event events = 3; repeated string tx_hashes = 4; }
//	Event { string subtype = 1; oneof { uint32 transaction_index = 2; BlockEvent block_event = 3; }
//	        uint32 event_index = 4; uint32 version = 5; bytes data = 6; }
const (
	blockHeightField   protowire.Number = 1
	blockTimeField     protowire.Number = 2
	blockEventsField   protowire.Number = 3
	blockTxHashesField protowire.Number = 4

	eventSubtypeField    protowire.Number = 1
	eventTxIndexField    protowire.Number = 2
	eventBlockEventField protowire.Number = 3
	eventIndexField      protowire.Number = 4
	eventVersionField    protowire.Number = 5
	eventDataField       protowire.Number = 6
)

// DecodeBlock decodes a block envelope. Unknown fields are skipped. Any
// malformed input returns *event.ParseError.
func DecodeBlock(data []byte) (*event.Block, error) {
	b := &event.Block{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, wireError("block tag", n)
		}
		data = data[n:]

		switch {
		case num == blockHeightField && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, wireError("block height", m)
			}
			b.Height = strconv.FormatUint(v, 10)
			n = m

		case num == blockTimeField && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, wireError("block time", m)
			}
			var ts timestamppb.Timestamp
			if err := proto.Unmarshal(v, &ts); err != nil {
				return nil, event.WrapParseError("", err, "block time")
			}
			if err := ts.CheckValid(); err != nil {
				return nil, event.WrapParseError("", err, "block time")
			}
			t := ts.AsTime().UTC()
			b.Time = &t
			n = m

		case num == blockEventsField && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, wireError("block event", m)
			}
			ev, err := decodeEvent(v)
			if err != nil {
				return nil, err
			}
			b.Events = append(b.Events, ev)
			n = m

		case num == blockTxHashesField && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, wireError("tx hash", m)
			}
			b.TxHashes = append(b.TxHashes, string(v))
			n = m

		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, wireError("unknown block field", n)
			}
		}
		data = data[n:]
	}
	return b, nil
}

func decodeEvent(data []byte) (event.Event, error) {
	var ev event.Event
	located := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return ev, wireError("event tag", n)
		}
		data = data[n:]

		switch {
		case num == eventSubtypeField && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return ev, wireError("event subtype", m)
			}
			ev.Subtype = string(v)
			n = m

		case num == eventDataField && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return ev, wireError("event data", m)
			}
			ev.Data = append([]byte(nil), v...)
			n = m

		case typ == protowire.VarintType &&
			(num == eventTxIndexField || num == eventBlockEventField || num == eventIndexField || num == eventVersionField):
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return ev, wireError("event field", m)
			}
			switch num {
			case eventTxIndexField:
				if v > math.MaxInt32 {
					return ev, event.NewParseError(ev.Subtype, "transaction index %d out of range", v)
				}
				ev.TransactionIndex = int32(v)
				ev.BlockEvent = event.BlockEventUnspecified
				located = true
			case eventBlockEventField:
				kind := event.BlockEventKind(v)
				if v > math.MaxInt32 || !kind.Valid() {
					return ev, event.NewParseError(ev.Subtype, "invalid block event type %d", v)
				}
				ev.TransactionIndex = kind.TxIndex()
				ev.BlockEvent = kind
				located = true
			case eventIndexField:
				ev.EventIndex = uint32(v)
			case eventVersionField:
				ev.Version = uint32(v)
			}
			n = m

		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return ev, wireError("unknown event field", n)
			}
		}
		data = data[n:]
	}
	if !located {
		return ev, event.NewParseError(ev.Subtype, "either transaction index or block event must be set")
	}
	return ev, nil
}

func wireError(what string, n int) error {
	return event.WrapParseError("", protowire.ParseError(n), "decode "+what)
}
