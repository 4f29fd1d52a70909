package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// Amounts are decimal strings so u64 values survive JSON and structpb.

type MarketAccounts struct {
	Market       string `json:"market" binding:"required"`
	Orderbook    string `json:"orderbook" binding:"required"`
	EventQueue   string `json:"event_queue" binding:"required"`
	Bids         string `json:"bids" binding:"required"`
	Asks         string `json:"asks" binding:"required"`
	BaseVault    string `json:"base_vault" binding:"required"`
	QuoteVault   string `json:"quote_vault" binding:"required"`
	MarketSigner string `json:"market_signer" binding:"required"`
	BaseMint     string `json:"base_mint" binding:"required"`
	QuoteMint    string `json:"quote_mint" binding:"required"`
	ProgramID    string `json:"program_id" binding:"required"`
}

type SwapRequest struct {
	ExactInputAmount    string `json:"exact_input_amount" binding:"required"`
	MinimumOutputAmount string `json:"minimum_output_amount"`
	// Deadline is a slot; empty means no deadline.
	Deadline   string `json:"deadline,omitempty"`
	SideHint   uint8  `json:"side_hint"`
	MatchLimit string `json:"match_limit,omitempty"`

	From MarketAccounts `json:"from" binding:"required"`
	To   MarketAccounts `json:"to" binding:"required"`

	InputVault        string `json:"input_vault" binding:"required"`
	IntermediateVault string `json:"intermediate_vault" binding:"required"`
	OutputVault       string `json:"output_vault" binding:"required"`
	Principal         string `json:"principal" binding:"required"`
	TokenProgram      string `json:"token_program" binding:"required"`
	DexProgram        string `json:"dex_program" binding:"required"`
	FeeReferral       string `json:"fee_referral,omitempty"`

	// Grant is a base58 signed grant; quotes do not need one.
	Grant string `json:"grant,omitempty"`
}

type LegResult struct {
	InputConsumed  string `json:"input_consumed"`
	OutputProduced string `json:"output_produced"`
	FeePaid        string `json:"fee_paid"`
	Fills          int    `json:"fills"`
}

type SwapResponse struct {
	FinalOutputAmount string      `json:"final_output_amount"`
	Success           bool        `json:"success"`
	Slot              string      `json:"slot"`
	Legs              []LegResult `json:"legs"`
	DryRun            bool        `json:"dry_run,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type VaultResponse struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Mint    string `json:"mint"`
	Balance string `json:"balance"`
}

type Level struct {
	Price     decimal.Decimal `json:"price"`
	Remaining string          `json:"remaining"`
	OrderID   string          `json:"order_id,omitempty"`
}

type OrderbookResponse struct {
	Market    string    `json:"market"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

type MarketSummary struct {
	Accounts MarketAccounts `json:"accounts"`
	Halted   bool           `json:"halted"`
}

type SlotResponse struct {
	Slot string `json:"slot"`
}

type RouteEvent struct {
	ID        string    `json:"id"`
	Slot      string    `json:"slot"`
	Principal string    `json:"principal"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Timestamp time.Time `json:"timestamp"`
}
