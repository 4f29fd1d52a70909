package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

type Side string
type OrderStatus string

const (
	Buy             Side        = "BUY"
	Sell            Side        = "SELL"
	Open            OrderStatus = "OPEN"
	Filled          OrderStatus = "FILLED"
	Cancelled       OrderStatus = "CANCELLED"
	PartiallyFilled OrderStatus = "PARTIALLY FILLED"
)

// Order is a resting maker order on a reference order-book market.
// Price is quote units per base unit, Quantity and Remaining are base units.
type Order struct {
	ID            string
	Owner         solana.PublicKey
	ClientOrderID string
	Side          Side
	Price         decimal.Decimal
	Quantity      uint64
	Remaining     uint64
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (o *Order) PartiallyFilled() bool {
	return o.Remaining > 0 && o.Remaining < o.Quantity
}

// MarketOrder is the marketable request a leg submits to a market: spend up
// to InputAmount of the input asset at any price.
type MarketOrder struct {
	Side        BookSide
	InputAmount uint64
	MatchLimit  uint64
	Payer       solana.PublicKey
	Receiver    solana.PublicKey
	Authority   solana.PublicKey
	FeeReferral *solana.PublicKey
}

// Fill is what a market reports back for one MarketOrder.
type Fill struct {
	InputConsumed  uint64
	OutputProduced uint64
	FeePaid        uint64
	MakerFills     int
}
