package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FillEvent is appended to a market's event queue for every maker order a
// taker matched against.
type FillEvent struct {
	ID            string
	Market        string
	MakerOrder    string
	TakerSide     BookSide
	Price         decimal.Decimal
	BaseQuantity  uint64
	QuoteQuantity uint64
	Timestamp     time.Time
}
