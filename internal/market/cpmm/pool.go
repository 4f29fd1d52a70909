// Package cpmm is a constant-product market behind the same marketable-order
// capability as the order book. Its reserves are the balances of its vaults.
package cpmm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/market"
	"github.com/olyamironova/swap-router/internal/port"
	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"
)

var _ port.Market = (*Pool)(nil)

type Config struct {
	Ref              domain.MarketRef
	FeeBps           uint64
	ReferralShareBps uint64
}

type Pool struct {
	mu     sync.Mutex
	cfg    Config
	ledger port.Ledger
	halted atomic.Bool
}

// New builds a pool whose reserves live in ledger.
func New(cfg Config, ledger port.Ledger) *Pool {
	return &Pool{cfg: cfg, ledger: ledger}
}

func (p *Pool) Ref() domain.MarketRef { return p.cfg.Ref }
func (p *Pool) Lock()                 { p.mu.Lock() }
func (p *Pool) Unlock()               { p.mu.Unlock() }
func (p *Pool) Halted() bool          { return p.halted.Load() }
func (p *Pool) SetHalted(h bool)      { p.halted.Store(h) }

// AmountOut is the constant-product output for amountIn net of the fee.
// The fee is taken from the gross output, as on the order book, and stays
// in the pool.
func AmountOut(amountIn, reserveIn, reserveOut, feeBps uint64) uint64 {
	net, _ := market.TakeFee(grossOut(amountIn, reserveIn, reserveOut), feeBps)
	return net
}

func grossOut(amountIn, reserveIn, reserveOut uint64) uint64 {
	if amountIn == 0 || reserveIn == 0 || reserveOut == 0 {
		return 0
	}
	num := uint128.From64(reserveOut).Mul64(amountIn)
	den := uint128.From64(reserveIn).Add64(amountIn)
	return num.Div(den).Lo
}

func (p *Pool) SubmitMarketable(ctx context.Context, tx port.Tx, o domain.MarketOrder) (domain.Fill, error) {
	ref := p.cfg.Ref
	inMint, outMint := ref.Mints(o.Side)
	inVault, _ := ref.VaultFor(inMint)
	outVault, _ := ref.VaultFor(outMint)

	if o.InputAmount == 0 {
		return domain.Fill{}, nil
	}
	rin, err := tx.Vault(ctx, inVault)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("pool %s: reserve in: %w", ref.Market, err)
	}
	rout, err := tx.Vault(ctx, outVault)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("pool %s: reserve out: %w", ref.Market, err)
	}

	net, fee := market.TakeFee(grossOut(o.InputAmount, rin.Balance, rout.Balance), p.cfg.FeeBps)
	if net == 0 {
		return domain.Fill{}, nil
	}
	if err := tx.Transfer(ctx, o.Payer, inVault, o.InputAmount, o.Authority); err != nil {
		return domain.Fill{}, fmt.Errorf("pool %s: collect input: %w", ref.Market, err)
	}
	if err := tx.Transfer(ctx, outVault, o.Receiver, net, ref.MarketSigner); err != nil {
		return domain.Fill{}, fmt.Errorf("pool %s: pay output: %w", ref.Market, err)
	}
	if o.FeeReferral != nil {
		if rebate := market.BpsOf(fee, p.cfg.ReferralShareBps); rebate > 0 {
			if err := tx.Transfer(ctx, outVault, *o.FeeReferral, rebate, ref.MarketSigner); err != nil {
				return domain.Fill{}, fmt.Errorf("pool %s: pay referral: %w", ref.Market, err)
			}
		}
	}
	return domain.Fill{
		InputConsumed:  o.InputAmount,
		OutputProduced: net,
		FeePaid:        fee,
		MakerFills:     1,
	}, nil
}

// Depth reports the pool as one synthetic level per side at the spot price.
func (p *Pool) Depth(ctx context.Context) (*domain.OrderbookSnapshot, error) {
	base, err := p.ledger.Vault(ctx, p.cfg.Ref.BaseVault)
	if err != nil {
		return nil, err
	}
	quote, err := p.ledger.Vault(ctx, p.cfg.Ref.QuoteVault)
	if err != nil {
		return nil, err
	}
	snap := &domain.OrderbookSnapshot{Symbol: p.cfg.Ref.Market.String(), Timestamp: time.Now()}
	if base.Balance == 0 || quote.Balance == 0 {
		return snap, nil
	}
	spot := decimal.NewFromUint64(quote.Balance).Div(decimal.NewFromUint64(base.Balance))
	snap.Bids = []domain.Order{{Side: domain.Buy, Price: spot, Quantity: base.Balance, Remaining: base.Balance, Status: domain.Open}}
	snap.Asks = []domain.Order{{Side: domain.Sell, Price: spot, Quantity: base.Balance, Remaining: base.Balance, Status: domain.Open}}
	return snap, nil
}
