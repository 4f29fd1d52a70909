package domain

import "errors"

// Route errors. Every failure a caller sees wraps exactly one of these.
var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrDeadlineExceeded      = errors.New("deadline exceeded")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrMarketUnavailable     = errors.New("market unavailable")
)

// Ledger errors.
var (
	ErrVaultNotFound     = errors.New("vault not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("authority does not own vault")
	ErrMintMismatch      = errors.New("vault mint mismatch")
	ErrBalanceOverflow   = errors.New("balance overflow")
	ErrTxDone            = errors.New("transaction already finished")
)

// Code returns the stable taxonomy name of err, or "Internal".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "InvalidRequest"
	case errors.Is(err, ErrDeadlineExceeded):
		return "DeadlineExceeded"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "InsufficientLiquidity"
	case errors.Is(err, ErrSlippageExceeded):
		return "SlippageExceeded"
	case errors.Is(err, ErrMarketUnavailable):
		return "MarketUnavailable"
	default:
		return "Internal"
	}
}
