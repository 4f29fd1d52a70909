package domain

import (
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
)

// NoDeadline is the conventional "no deadline" sentinel slot.
const NoDeadline uint64 = math.MaxUint64

// BookSide selects which side of a market's book a leg trades against.
type BookSide uint8

const (
	// Bid sells the market's base asset into the resting bids.
	Bid BookSide = 0
	// Ask buys the market's base asset from the resting asks.
	Ask BookSide = 1
)

func (s BookSide) String() string {
	if s == Ask {
		return "ask"
	}
	return "bid"
}

// SideHint packs the side of both legs: bit 0 for leg 1, bit 1 for leg 2.
type SideHint uint8

const (
	HintBidBid SideHint = 0
	HintAskBid SideHint = 1
	HintBidAsk SideHint = 2
	HintAskAsk SideHint = 3
)

func (h SideHint) Valid() bool { return h <= HintAskAsk }

func (h SideHint) Leg1() BookSide { return BookSide(h & 1) }

func (h SideHint) Leg2() BookSide { return BookSide((h >> 1) & 1) }

// SwapRequest holds the positional parameters of a route, in caller order.
type SwapRequest struct {
	ExactInputAmount    uint64
	MinimumOutputAmount uint64
	Deadline            uint64
	SideHint            SideHint
	// MatchLimit caps the maker orders one leg may match; 0 means unlimited.
	MatchLimit uint64
}

// MarketRef is the account group naming one market and the resources an
// order against it touches.
type MarketRef struct {
	Market       solana.PublicKey
	Orderbook    solana.PublicKey
	EventQueue   solana.PublicKey
	Bids         solana.PublicKey
	Asks         solana.PublicKey
	BaseVault    solana.PublicKey
	QuoteVault   solana.PublicKey
	MarketSigner solana.PublicKey
	BaseMint     solana.PublicKey
	QuoteMint    solana.PublicKey
	ProgramID    solana.PublicKey
}

// Mints returns the (input, output) mints of a leg taken on the given side.
func (m MarketRef) Mints(side BookSide) (in, out solana.PublicKey) {
	if side == Ask {
		return m.QuoteMint, m.BaseMint
	}
	return m.BaseMint, m.QuoteMint
}

// VaultFor returns the market vault that holds the given mint.
func (m MarketRef) VaultFor(mint solana.PublicKey) (solana.PublicKey, bool) {
	switch {
	case mint.Equals(m.BaseMint):
		return m.BaseVault, true
	case mint.Equals(m.QuoteMint):
		return m.QuoteVault, true
	}
	return solana.PublicKey{}, false
}

// RouteAccounts are the top-level accounts of a route.
type RouteAccounts struct {
	InputVault        solana.PublicKey
	IntermediateVault solana.PublicKey
	OutputVault       solana.PublicKey
	Principal         solana.PublicKey
	TokenProgram      solana.PublicKey
	DexProgram        solana.PublicKey
	FeeReferral       *solana.PublicKey
}

type LegResult struct {
	InputConsumed  uint64
	OutputProduced uint64
	// FeePaid is in units of the leg's output mint for every market kind.
	FeePaid uint64
	Fills   int
}

type RouteOutcome struct {
	FinalOutputAmount uint64
	Success           bool
	Legs              [2]LegResult
	Slot              uint64
}

// RouteState names the stage a request is in.
type RouteState string

const (
	StateValidating    RouteState = "validating"
	StateLeg1Executing RouteState = "leg1_executing"
	StateLeg2Executing RouteState = "leg2_executing"
	StateGuardChecking RouteState = "guard_checking"
	StateCommitted     RouteState = "committed"
	StateAborted       RouteState = "aborted"
)

// Vault holds the balance of one mint for one owner.
type Vault struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
	Mint    solana.PublicKey
	Balance uint64
}

// RouteEvent announces a committed route.
type RouteEvent struct {
	ID        string
	Slot      uint64
	Principal solana.PublicKey
	From      solana.PublicKey
	To        solana.PublicKey
	Input     uint64
	Output    uint64
	Timestamp time.Time
}
