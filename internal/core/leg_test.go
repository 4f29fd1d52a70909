package core

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/adapter/in_memory"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/port"
	"go.opentelemetry.io/otel/trace/noop"
)

// stubMarket reports a fixed fill without moving funds.
type stubMarket struct {
	ref  domain.MarketRef
	fill domain.Fill
	err  error
}

func (m *stubMarket) Ref() domain.MarketRef { return m.ref }
func (m *stubMarket) Halted() bool          { return false }
func (m *stubMarket) Lock()                 {}
func (m *stubMarket) Unlock()               {}

func (m *stubMarket) SubmitMarketable(context.Context, port.Tx, domain.MarketOrder) (domain.Fill, error) {
	return m.fill, m.err
}

func (m *stubMarket) Depth(context.Context) (*domain.OrderbookSnapshot, error) {
	return &domain.OrderbookSnapshot{}, nil
}

func TestLegExecutor_Classification(t *testing.T) {
	exec := NewLegExecutor(slog.Default(), noop.NewTracerProvider().Tracer("test"))
	ledger := in_memory.NewLedger()
	ctx := context.Background()

	tests := []struct {
		name    string
		input   uint64
		min     uint64
		fill    domain.Fill
		wantErr error
	}{
		{"zero input", 0, 0, domain.Fill{}, domain.ErrInsufficientLiquidity},
		{"nothing filled", 100, 0, domain.Fill{}, domain.ErrInsufficientLiquidity},
		{"zero output", 100, 0, domain.Fill{InputConsumed: 100}, domain.ErrInsufficientLiquidity},
		{"partial fill", 100, 0, domain.Fill{InputConsumed: 99, OutputProduced: 50}, domain.ErrInsufficientLiquidity},
		{"overconsumed", 100, 0, domain.Fill{InputConsumed: 101, OutputProduced: 50}, domain.ErrMarketUnavailable},
		{"below leg minimum", 100, 60, domain.Fill{InputConsumed: 100, OutputProduced: 50}, domain.ErrSlippageExceeded},
		{"at leg minimum", 100, 50, domain.Fill{InputConsumed: 100, OutputProduced: 50}, nil},
		{"no leg minimum", 100, 0, domain.Fill{InputConsumed: 100, OutputProduced: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := ledger.BeginTx(ctx)
			if err != nil {
				t.Fatalf("begin: %v", err)
			}
			defer tx.Rollback(ctx)
			res, err := exec.Execute(ctx, tx, LegParams{
				Market:              &stubMarket{fill: tt.fill},
				InputAmount:         tt.input,
				MinAcceptableOutput: tt.min,
			})
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if res.OutputProduced != tt.fill.OutputProduced {
					t.Fatalf("output = %d, want %d", res.OutputProduced, tt.fill.OutputProduced)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLegTx_ClassifiesTransferFailures(t *testing.T) {
	ctx := context.Background()
	ledger := in_memory.NewLedger()
	owner, mint := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	payer, market, receiver := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	for _, addr := range []solana.PublicKey{payer, market, receiver} {
		if err := ledger.CreateVault(ctx, domain.Vault{Address: addr, Owner: owner, Mint: mint}); err != nil {
			t.Fatalf("create vault: %v", err)
		}
	}
	tx, _ := ledger.BeginTx(ctx)
	defer tx.Rollback(ctx)
	lt := &legTx{Tx: tx, payer: payer}

	err := lt.Transfer(ctx, payer, market, 1, owner)
	if !errors.Is(err, domain.ErrInvalidRequest) || !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("payer debit: got %v", err)
	}
	err = lt.Transfer(ctx, market, receiver, 1, owner)
	if !errors.Is(err, domain.ErrMarketUnavailable) || !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("market payout: got %v", err)
	}
}

func TestScopedTx(t *testing.T) {
	ctx := context.Background()
	ledger := in_memory.NewLedger()
	principal, signer := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	input, mid, pool := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	for _, v := range []domain.Vault{
		{Address: input, Owner: principal, Mint: mint, Balance: 1_000},
		{Address: mid, Owner: principal, Mint: mint},
		{Address: pool, Owner: signer, Mint: mint, Balance: 1_000},
	} {
		if err := ledger.CreateVault(ctx, v); err != nil {
			t.Fatalf("create vault: %v", err)
		}
	}
	tx, _ := ledger.BeginTx(ctx)
	defer tx.Rollback(ctx)
	st := newScopedTx(tx, domain.Grant{
		Principal: principal,
		Vaults:    []domain.VaultAllowance{{Vault: input, MaxDebit: 100}},
	})

	if err := st.Transfer(ctx, input, pool, 60, principal); err != nil {
		t.Fatalf("first debit: %v", err)
	}
	if err := st.Transfer(ctx, input, pool, 41, principal); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("debit beyond allowance: got %v", err)
	}
	if err := st.Transfer(ctx, input, pool, 40, principal); err != nil {
		t.Fatalf("debit up to allowance: %v", err)
	}
	if err := st.Transfer(ctx, mid, pool, 1, principal); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("debit of uncredited vault: got %v", err)
	}
	if err := st.Transfer(ctx, pool, mid, 500, signer); err != nil {
		t.Fatalf("market credit: %v", err)
	}
	if err := st.Transfer(ctx, mid, pool, 500, principal); err != nil {
		t.Fatalf("forwarding credited funds: %v", err)
	}
	if err := st.Transfer(ctx, mid, pool, 1, principal); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("debit beyond credits: got %v", err)
	}
}
