package event

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// idNamespace seeds every deterministic UUID derived by the indexer.
var idNamespace = uuid.MustParse("0f9da948-a6fb-4c45-9edc-4685c3f3317d")

// DeterministicID derives a stable UUIDv5 from the joined parts.
func DeterministicID(parts ...string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "-")))
}

// EventID is the unique, stable identifier of an event position: the height
// digits, a zero separator, then the transaction and event indexes as
// big-endian uint32. Block events use 2^32-1 as their transaction index.
func EventID(pos Position) []byte {
	buf := make([]byte, 0, len(pos.Height)+9)
	buf = append(buf, pos.Height...)
	buf = append(buf, 0)
	buf = binary.BigEndian.AppendUint32(buf, uint32(pos.TransactionIndex))
	buf = binary.BigEndian.AppendUint32(buf, pos.EventIndex)
	return buf
}

// EventIDHex is the hex form of EventID used inside derived ids.
func EventIDHex(pos Position) string {
	return hex.EncodeToString(EventID(pos))
}

// TransactionID derives the tendermint transaction row id.
func TransactionID(height string, txIndex int32) uuid.UUID {
	return DeterministicID(height, fmt.Sprint(txIndex))
}

// SubaccountID names a subaccount on chain.
type SubaccountID struct {
	Owner  string `json:"owner"`
	Number uint32 `json:"number"`
}

// UUID is the store identifier of the subaccount.
func (s SubaccountID) UUID() uuid.UUID {
	return DeterministicID(s.Owner, fmt.Sprint(s.Number))
}

func (s SubaccountID) String() string {
	return fmt.Sprintf("%s/%d", s.Owner, s.Number)
}

// Order flag values carried by order ids.
const (
	OrderFlagShortTerm   uint32 = 0
	OrderFlagConditional uint32 = 32
	OrderFlagLongTerm    uint32 = 64
)

// OrderID identifies an order on chain.
type OrderID struct {
	SubaccountID SubaccountID `json:"subaccount_id"`
	ClientID     uint32       `json:"client_id"`
	ClobPairID   uint32       `json:"clob_pair_id"`
	OrderFlags   uint32       `json:"order_flags"`
}

// UUID is the store identifier of the order.
func (o OrderID) UUID() uuid.UUID {
	return DeterministicID(
		o.SubaccountID.UUID().String(),
		fmt.Sprint(o.ClientID),
		fmt.Sprint(o.ClobPairID),
		fmt.Sprint(o.OrderFlags),
	)
}

// IsStateful reports whether the order lives in chain state (long-term or conditional).
func (o OrderID) IsStateful() bool {
	return o.OrderFlags == OrderFlagLongTerm || o.OrderFlags == OrderFlagConditional
}
