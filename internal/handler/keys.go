package handler

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Resource keys shared across handler kinds. Every handler that reads and
// rewrites a subaccount's positions declares subaccountOrderFillKey so such
// handlers are serialized within a block.
func subaccountOrderFillKey(subaccountID uuid.UUID) string {
	return fmt.Sprintf("SUBACCOUNT_ORDER_FILL_%s", subaccountID)
}

func statefulOrderFillKey(orderID uuid.UUID) string {
	return fmt.Sprintf("STATEFUL_ORDER_ORDER_FILL_%s", orderID)
}

func orderFillKey(subaccountID uuid.UUID, clobPairID uint32) string {
	return fmt.Sprintf("order_fill_%s_%d", subaccountID, clobPairID)
}

func deleveragingKey(subaccountID uuid.UUID, perpetualID uint32) string {
	return fmt.Sprintf("deleveraging_%s_%d", subaccountID, perpetualID)
}

func subaccountUpdateKey(subaccountID uuid.UUID) string {
	return fmt.Sprintf("subaccount_update_%s", subaccountID)
}

func marketKey(marketID uint32) string {
	return fmt.Sprintf("market_%d", marketID)
}

func fundingKey(perpetualID uint32) string {
	return fmt.Sprintf("funding_%d", perpetualID)
}

// positionSide renders the direction of a signed size.
func positionSide(size decimal.Decimal) string {
	switch size.Sign() {
	case 1:
		return "LONG"
	case -1:
		return "SHORT"
	default:
		return "CLOSED"
	}
}
