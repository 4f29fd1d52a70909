// Package genesis builds the markets and funded vaults a router instance
// starts with. Addresses are program-derived so configuration only needs
// names and symbols.
package genesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/market"
	"github.com/olyamironova/swap-router/internal/market/cpmm"
	"github.com/olyamironova/swap-router/internal/market/orderbook"
	"github.com/olyamironova/swap-router/internal/port"
	"github.com/shopspring/decimal"
)

const (
	KindOrderbook = "orderbook"
	KindCPMM      = "cpmm"
)

type Level struct {
	Price    string `mapstructure:"price" json:"price"`
	Quantity uint64 `mapstructure:"quantity" json:"quantity"`
}

type Market struct {
	Name             string  `mapstructure:"name" json:"name"`
	Kind             string  `mapstructure:"kind" json:"kind"`
	Base             string  `mapstructure:"base" json:"base"`
	Quote            string  `mapstructure:"quote" json:"quote"`
	TakerFeeBps      uint64  `mapstructure:"taker_fee_bps" json:"taker_fee_bps"`
	ReferralShareBps uint64  `mapstructure:"referral_share_bps" json:"referral_share_bps"`
	Bids             []Level `mapstructure:"bids" json:"bids"`
	Asks             []Level `mapstructure:"asks" json:"asks"`

	// BaseReserve and QuoteReserve fund a cpmm pool.
	BaseReserve  uint64 `mapstructure:"base_reserve" json:"base_reserve"`
	QuoteReserve uint64 `mapstructure:"quote_reserve" json:"quote_reserve"`
	Halted       bool   `mapstructure:"halted" json:"halted"`
}

type Account struct {
	Owner    string            `mapstructure:"owner" json:"owner"`
	Balances map[string]uint64 `mapstructure:"balances" json:"balances"`
}

type Config struct {
	Markets  []Market  `mapstructure:"markets" json:"markets"`
	Accounts []Account `mapstructure:"accounts" json:"accounts"`
}

// VaultStore is the part of a ledger genesis writes to.
type VaultStore interface {
	port.Ledger
	CreateVault(ctx context.Context, v domain.Vault) error
}

// World is what Build produced.
type World struct {
	DexProgram solana.PublicKey
	Registry   *market.Registry
	Markets    map[string]port.Market
	Mints      map[string]solana.PublicKey
}

// MintAddress derives the mint of a symbol. Symbols are case-insensitive.
func MintAddress(symbol string) (solana.PublicKey, error) {
	symbol = strings.ToUpper(symbol)
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("mint"), []byte(symbol)}, solana.TokenProgramID)
	return addr, err
}

// VaultAddress derives the vault an owner holds a symbol in.
func VaultAddress(owner solana.PublicKey, symbol string) (solana.PublicKey, error) {
	mint, err := MintAddress(symbol)
	if err != nil {
		return solana.PublicKey{}, err
	}
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	return addr, err
}

// MarketRef derives the account group of a named market.
func MarketRef(dex solana.PublicKey, m Market) (domain.MarketRef, error) {
	derive := func(parts ...string) (solana.PublicKey, error) {
		seeds := make([][]byte, 0, len(parts))
		for _, p := range parts {
			seeds = append(seeds, []byte(p))
		}
		addr, _, err := solana.FindProgramAddress(seeds, dex)
		return addr, err
	}
	var (
		ref domain.MarketRef
		err error
	)
	fields := []struct {
		dst  *solana.PublicKey
		role string
	}{
		{&ref.Market, "market"},
		{&ref.Orderbook, "orderbook"},
		{&ref.EventQueue, "event_queue"},
		{&ref.Bids, "bids"},
		{&ref.Asks, "asks"},
		{&ref.BaseVault, "base_vault"},
		{&ref.QuoteVault, "quote_vault"},
	}
	for _, f := range fields {
		if *f.dst, err = derive(f.role, m.Name); err != nil {
			return ref, fmt.Errorf("derive %s of %s: %w", f.role, m.Name, err)
		}
	}
	if ref.MarketSigner, _, err = solana.FindProgramAddress([][]byte{ref.Market[:]}, dex); err != nil {
		return ref, fmt.Errorf("derive signer of %s: %w", m.Name, err)
	}
	if ref.BaseMint, err = MintAddress(m.Base); err != nil {
		return ref, err
	}
	if ref.QuoteMint, err = MintAddress(m.Quote); err != nil {
		return ref, err
	}
	ref.ProgramID = dex
	return ref, nil
}

// Build creates every market and vault in cfg and registers the markets.
func Build(ctx context.Context, dex solana.PublicKey, cfg Config, store VaultStore) (*World, error) {
	w := &World{
		DexProgram: dex,
		Registry:   market.NewRegistry(),
		Markets:    make(map[string]port.Market),
		Mints:      make(map[string]solana.PublicKey),
	}
	for _, mc := range cfg.Markets {
		if mc.Name == "" || mc.Base == "" || mc.Quote == "" || strings.EqualFold(mc.Base, mc.Quote) {
			return nil, fmt.Errorf("genesis: market %q needs a name and two distinct symbols", mc.Name)
		}
		if _, ok := w.Markets[mc.Name]; ok {
			return nil, fmt.Errorf("genesis: duplicate market %q", mc.Name)
		}
		m, err := w.buildMarket(ctx, mc, store)
		if err != nil {
			return nil, fmt.Errorf("genesis: market %q: %w", mc.Name, err)
		}
		if err := w.Registry.Register(m); err != nil {
			return nil, fmt.Errorf("genesis: %w", err)
		}
		w.Markets[mc.Name] = m
	}
	for _, ac := range cfg.Accounts {
		owner, err := solana.PublicKeyFromBase58(ac.Owner)
		if err != nil {
			return nil, fmt.Errorf("genesis: account owner %q: %w", ac.Owner, err)
		}
		for symbol, balance := range ac.Balances {
			if err := w.createVault(ctx, store, owner, symbol, balance); err != nil {
				return nil, fmt.Errorf("genesis: account %s: %w", owner, err)
			}
		}
	}
	return w, nil
}

func (w *World) mint(symbol string) (solana.PublicKey, error) {
	symbol = strings.ToUpper(symbol)
	if m, ok := w.Mints[symbol]; ok {
		return m, nil
	}
	m, err := MintAddress(symbol)
	if err != nil {
		return m, err
	}
	w.Mints[symbol] = m
	return m, nil
}

func (w *World) createVault(ctx context.Context, store VaultStore, owner solana.PublicKey, symbol string, balance uint64) error {
	mint, err := w.mint(symbol)
	if err != nil {
		return err
	}
	addr, err := VaultAddress(owner, symbol)
	if err != nil {
		return err
	}
	return store.CreateVault(ctx, domain.Vault{Address: addr, Owner: owner, Mint: mint, Balance: balance})
}

func (w *World) buildMarket(ctx context.Context, mc Market, store VaultStore) (port.Market, error) {
	ref, err := MarketRef(w.DexProgram, mc)
	if err != nil {
		return nil, err
	}
	if _, err := w.mint(mc.Base); err != nil {
		return nil, err
	}
	if _, err := w.mint(mc.Quote); err != nil {
		return nil, err
	}

	var (
		m                     port.Market
		baseFunds, quoteFunds uint64
	)
	switch mc.Kind {
	case "", KindOrderbook:
		book := orderbook.New(orderbook.Config{Ref: ref, TakerFeeBps: mc.TakerFeeBps, ReferralShareBps: mc.ReferralShareBps})
		for _, l := range mc.Bids {
			price, err := decimal.NewFromString(l.Price)
			if err != nil {
				return nil, fmt.Errorf("bid price %q: %w", l.Price, err)
			}
			if _, err := book.PlaceLimit(ref.MarketSigner, domain.Buy, price, l.Quantity); err != nil {
				return nil, err
			}
			cost := decimal.NewFromUint64(l.Quantity).Mul(price).Ceil()
			if !cost.BigInt().IsUint64() || quoteFunds+cost.BigInt().Uint64() < quoteFunds {
				return nil, fmt.Errorf("bid backing overflows")
			}
			quoteFunds += cost.BigInt().Uint64()
		}
		for _, l := range mc.Asks {
			price, err := decimal.NewFromString(l.Price)
			if err != nil {
				return nil, fmt.Errorf("ask price %q: %w", l.Price, err)
			}
			if _, err := book.PlaceLimit(ref.MarketSigner, domain.Sell, price, l.Quantity); err != nil {
				return nil, err
			}
			if baseFunds+l.Quantity < baseFunds {
				return nil, fmt.Errorf("ask backing overflows")
			}
			baseFunds += l.Quantity
		}
		book.SetHalted(mc.Halted)
		m = book
	case KindCPMM:
		pool := cpmm.New(cpmm.Config{Ref: ref, FeeBps: mc.TakerFeeBps, ReferralShareBps: mc.ReferralShareBps}, store)
		pool.SetHalted(mc.Halted)
		baseFunds, quoteFunds = mc.BaseReserve, mc.QuoteReserve
		m = pool
	default:
		return nil, fmt.Errorf("unknown market kind %q", mc.Kind)
	}

	vaults := []domain.Vault{
		{Address: ref.BaseVault, Owner: ref.MarketSigner, Mint: ref.BaseMint, Balance: baseFunds},
		{Address: ref.QuoteVault, Owner: ref.MarketSigner, Mint: ref.QuoteMint, Balance: quoteFunds},
	}
	for _, v := range vaults {
		if err := store.CreateVault(ctx, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}
