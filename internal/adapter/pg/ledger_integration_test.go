//go:build integration

package pg_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/adapter/pg"
	"github.com/olyamironova/swap-router/internal/auth"
	"github.com/olyamironova/swap-router/internal/clock"
	"github.com/olyamironova/swap-router/internal/core"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/genesis"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "swaprouter",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")
	return fmt.Sprintf("postgres://test:test@%s:%s/swaprouter?sslmode=disable", host, port.Port())
}

func newLedger(t *testing.T) (*pg.Ledger, context.Context) {
	t.Helper()
	ctx := context.Background()
	ledger, err := pg.NewLedger(ctx, startPostgres(t, ctx), nil)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	t.Cleanup(ledger.Close)
	if err := ledger.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return ledger, ctx
}

func balance(t *testing.T, ctx context.Context, l *pg.Ledger, addr solana.PublicKey) uint64 {
	t.Helper()
	v, err := l.Vault(ctx, addr)
	if err != nil {
		t.Fatalf("vault %s: %v", addr, err)
	}
	return v.Balance
}

func TestLedger_TransferCommitRollback(t *testing.T) {
	ledger, ctx := newLedger(t)
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	a, b := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	for _, v := range []domain.Vault{
		{Address: a, Owner: owner, Mint: mint, Balance: 18_000_000_000_000_000_000},
		{Address: b, Owner: owner, Mint: mint},
	} {
		if err := ledger.CreateVault(ctx, v); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := ledger.CreateVault(ctx, domain.Vault{Address: a, Owner: owner, Mint: mint}); err == nil {
		t.Fatal("expected duplicate vault error")
	}

	tx, err := ledger.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Transfer(ctx, a, b, 500, owner); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := balance(t, ctx, ledger, b); got != 500 {
		t.Fatalf("b = %d after commit", got)
	}

	var undone []int
	tx, err = ledger.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	tx.OnRollback(func() { undone = append(undone, 1) })
	tx.OnRollback(func() { undone = append(undone, 2) })
	if err := tx.Transfer(ctx, b, a, 200, owner); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if got := balance(t, ctx, ledger, b); got != 500 {
		t.Fatalf("b = %d after rollback", got)
	}
	if len(undone) != 2 || undone[0] != 2 {
		t.Fatalf("undo order %v", undone)
	}
	if err := tx.Commit(ctx); !errors.Is(err, domain.ErrTxDone) {
		t.Fatalf("commit after rollback: %v", err)
	}
}

func TestLedger_TransferErrors(t *testing.T) {
	ledger, ctx := newLedger(t)
	owner := solana.NewWallet().PublicKey()
	mint, other := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	a, b, c := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	for _, v := range []domain.Vault{
		{Address: a, Owner: owner, Mint: mint, Balance: 10},
		{Address: b, Owner: owner, Mint: mint},
		{Address: c, Owner: owner, Mint: other},
	} {
		if err := ledger.CreateVault(ctx, v); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	tests := []struct {
		name      string
		from, to  solana.PublicKey
		amount    uint64
		authority solana.PublicKey
		want      error
	}{
		{"unauthorized", a, b, 1, solana.NewWallet().PublicKey(), domain.ErrUnauthorized},
		{"mint mismatch", a, c, 1, owner, domain.ErrMintMismatch},
		{"insufficient", a, b, 11, owner, domain.ErrInsufficientFunds},
		{"missing", solana.NewWallet().PublicKey(), b, 1, owner, domain.ErrVaultNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := ledger.BeginTx(ctx)
			if err != nil {
				t.Fatalf("begin: %v", err)
			}
			defer func() { _ = tx.Rollback(ctx) }()
			if err := tx.Transfer(ctx, tt.from, tt.to, tt.amount, tt.authority); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLedger_Reset(t *testing.T) {
	ledger, ctx := newLedger(t)
	addr := solana.NewWallet().PublicKey()
	if err := ledger.CreateVault(ctx, domain.Vault{Address: addr, Owner: addr, Mint: addr}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ledger.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := ledger.Vault(ctx, addr); !errors.Is(err, domain.ErrVaultNotFound) {
		t.Fatalf("vault survived reset: %v", err)
	}
}

// A route over the postgres ledger commits both legs or neither.
func TestLedger_Route(t *testing.T) {
	ledger, ctx := newLedger(t)
	dex := solana.MustPublicKeyFromBase58("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	world, err := genesis.Build(ctx, dex, genesis.Config{
		Markets: []genesis.Market{
			{Name: "A/B", Base: "A", Quote: "B", Bids: []genesis.Level{{Price: "2", Quantity: 500}}},
			{Name: "C/B", Base: "C", Quote: "B", Asks: []genesis.Level{{Price: "4", Quantity: 1_000}}},
		},
		Accounts: []genesis.Account{{Owner: key.PublicKey().String(), Balances: map[string]uint64{"A": 1_000, "B": 0, "C": 0}}},
	}, ledger)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	mock := bclock.NewMock()
	router := core.NewRouter(ledger, world.Registry, clock.NewSlotClock(mock, mock.Now(), 0), nil)

	vault := func(symbol string) solana.PublicKey {
		addr, err := genesis.VaultAddress(key.PublicKey(), symbol)
		if err != nil {
			t.Fatalf("vault: %v", err)
		}
		return addr
	}
	params := func(amount, minOut, nonce uint64) core.ExecuteParams {
		p := core.ExecuteParams{
			Request: domain.SwapRequest{
				ExactInputAmount:    amount,
				MinimumOutputAmount: minOut,
				Deadline:            domain.NoDeadline,
				SideHint:            domain.HintBidAsk,
			},
			From: world.Markets["A/B"].Ref(),
			To:   world.Markets["C/B"].Ref(),
			Accounts: domain.RouteAccounts{
				InputVault:        vault("A"),
				IntermediateVault: vault("B"),
				OutputVault:       vault("C"),
				Principal:         key.PublicKey(),
				TokenProgram:      solana.TokenProgramID,
				DexProgram:        dex,
			},
		}
		sg, err := auth.Sign(domain.Grant{
			Principal:     key.PublicKey(),
			Vaults:        []domain.VaultAllowance{{Vault: vault("A"), MaxDebit: amount}},
			ExpiresAtSlot: 1_000,
			Nonce:         nonce,
		}, key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		p.Grant = &sg
		return p
	}

	if _, err := router.Execute(ctx, params(100, 51, 1)); !errors.Is(err, domain.ErrSlippageExceeded) {
		t.Fatalf("expected slippage, got %v", err)
	}
	if got := balance(t, ctx, ledger, vault("A")); got != 1_000 {
		t.Fatalf("A = %d after abort", got)
	}

	out, err := router.Execute(ctx, params(100, 50, 2))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.FinalOutputAmount != 50 {
		t.Fatalf("output %d, want 50", out.FinalOutputAmount)
	}
	if balance(t, ctx, ledger, vault("A")) != 900 || balance(t, ctx, ledger, vault("B")) != 0 || balance(t, ctx, ledger, vault("C")) != 50 {
		t.Fatal("unexpected balances after route")
	}
}
