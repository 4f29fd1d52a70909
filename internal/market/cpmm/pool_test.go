package cpmm

import (
	"context"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/adapter/in_memory"
	"github.com/olyamironova/swap-router/internal/domain"
)

func TestAmountOut(t *testing.T) {
	tests := []struct {
		name               string
		in, rin, rout, bps uint64
		want               uint64
	}{
		{"no fee", 100, 1_000, 1_000, 0, 90},
		// gross floor(10000*1000/11000) = 909, fee floor(909*30/10000) = 2
		{"with fee", 1_000, 10_000, 10_000, 30, 907},
		{"empty pool", 100, 0, 1_000, 0, 0},
		{"zero input", 0, 1_000, 1_000, 0, 0},
		{"large reserves", math.MaxUint64 / 2, math.MaxUint64 / 2, math.MaxUint64, 0, math.MaxUint64 / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AmountOut(tt.in, tt.rin, tt.rout, tt.bps); got != tt.want {
				t.Fatalf("AmountOut = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPool_SubmitMarketable(t *testing.T) {
	ctx := context.Background()
	ledger := in_memory.NewLedger()
	ref := domain.MarketRef{
		Market:       solana.NewWallet().PublicKey(),
		BaseVault:    solana.NewWallet().PublicKey(),
		QuoteVault:   solana.NewWallet().PublicKey(),
		MarketSigner: solana.NewWallet().PublicKey(),
		BaseMint:     solana.NewWallet().PublicKey(),
		QuoteMint:    solana.NewWallet().PublicKey(),
	}
	user := solana.NewWallet().PublicKey()
	userBase, userQuote := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	for _, v := range []domain.Vault{
		{Address: ref.BaseVault, Owner: ref.MarketSigner, Mint: ref.BaseMint, Balance: 1_000},
		{Address: ref.QuoteVault, Owner: ref.MarketSigner, Mint: ref.QuoteMint, Balance: 1_000},
		{Address: userBase, Owner: user, Mint: ref.BaseMint, Balance: 100},
		{Address: userQuote, Owner: user, Mint: ref.QuoteMint},
	} {
		if err := ledger.CreateVault(ctx, v); err != nil {
			t.Fatalf("create vault: %v", err)
		}
	}
	pool := New(Config{Ref: ref}, ledger)

	tx, err := ledger.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	fill, err := pool.SubmitMarketable(ctx, tx, domain.MarketOrder{
		Side: domain.Bid, InputAmount: 100, Payer: userBase, Receiver: userQuote, Authority: user,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if fill.InputConsumed != 100 || fill.OutputProduced != 90 {
		t.Fatalf("unexpected fill %+v", fill)
	}

	snap, err := pool.Depth(ctx)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if len(snap.Bids) != 1 || !snap.Bids[0].Price.Equal(snap.Asks[0].Price) || snap.Bids[0].Price.String() != "1" {
		t.Fatalf("reserves not restored after rollback: %+v", snap)
	}
}
