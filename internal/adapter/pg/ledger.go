package pg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/port"
	"github.com/shopspring/decimal"
)

var _ port.Ledger = (*Ledger)(nil)

// Ledger keeps vault balances in Postgres. Each route runs in one pgx
// transaction with the touched vault rows locked.
type Ledger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// call Close when finish to work with database.
func NewLedger(ctx context.Context, dsn string, logger *slog.Logger) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return NewLedgerFromPool(pool, logger), nil
}

func NewLedgerFromPool(pool *pgxpool.Pool, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{pool: pool, logger: logger.With("component", "pg-ledger")}
}

func (p *Ledger) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS vaults (
  address    TEXT PRIMARY KEY,
  owner      TEXT NOT NULL,
  mint       TEXT NOT NULL,
  balance    NUMERIC(20,0) NOT NULL CHECK (balance >= 0 AND balance <= 18446744073709551615),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS vault_transfers (
  id         UUID PRIMARY KEY,
  tx_id      UUID NOT NULL,
  from_vault TEXT NOT NULL REFERENCES vaults(address),
  to_vault   TEXT NOT NULL REFERENCES vaults(address),
  amount     NUMERIC(20,0) NOT NULL,
  authority  TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS vault_transfers_tx_id_idx ON vault_transfers(tx_id);
`

// Migrate creates the ledger tables if they do not exist.
func (p *Ledger) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	return nil
}

// Reset empties the ledger so genesis can seed it again.
func (p *Ledger) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `TRUNCATE vault_transfers, vaults`); err != nil {
		return fmt.Errorf("pg: reset: %w", err)
	}
	return nil
}

// CreateVault inserts a vault row; an existing address is an error.
func (p *Ledger) CreateVault(ctx context.Context, v domain.Vault) error {
	tag, err := p.pool.Exec(ctx, `
INSERT INTO vaults(address, owner, mint, balance)
VALUES($1,$2,$3,$4::numeric)
ON CONFLICT (address) DO NOTHING
`, v.Address.String(), v.Owner.String(), v.Mint.String(), decimal.NewFromUint64(v.Balance))
	if err != nil {
		return fmt.Errorf("pg: create vault %s: %w", v.Address, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pg: create vault %s: already exists", v.Address)
	}
	return nil
}

func (p *Ledger) Vault(ctx context.Context, address solana.PublicKey) (*domain.Vault, error) {
	return loadVault(ctx, p.pool, address, false)
}

func (p *Ledger) BeginTx(ctx context.Context) (port.Tx, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("pg: begin: %w", err)
	}
	return &pgTx{tx: tx, id: uuid.New(), logger: p.logger}, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadVault(ctx context.Context, q querier, address solana.PublicKey, forUpdate bool) (*domain.Vault, error) {
	query := `SELECT owner, mint, balance::text FROM vaults WHERE address = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var owner, mint, balance string
	if err := q.QueryRow(ctx, query, address.String()).Scan(&owner, &mint, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("vault %s: %w", address, domain.ErrVaultNotFound)
		}
		return nil, fmt.Errorf("pg: load vault %s: %w", address, err)
	}
	return scanVault(address, owner, mint, balance)
}

func scanVault(address solana.PublicKey, owner, mint, balance string) (*domain.Vault, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, fmt.Errorf("pg: vault %s owner: %w", address, err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("pg: vault %s mint: %w", address, err)
	}
	bal, err := strconv.ParseUint(balance, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("pg: vault %s balance: %w", address, err)
	}
	return &domain.Vault{Address: address, Owner: ownerKey, Mint: mintKey, Balance: bal}, nil
}

type pgTx struct {
	tx     pgx.Tx
	id     uuid.UUID
	undo   []func()
	done   bool
	logger *slog.Logger
}

func (t *pgTx) Vault(ctx context.Context, address solana.PublicKey) (*domain.Vault, error) {
	if t.done {
		return nil, domain.ErrTxDone
	}
	return loadVault(ctx, t.tx, address, false)
}

func (t *pgTx) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64, authority solana.PublicKey) error {
	if t.done {
		return domain.ErrTxDone
	}
	// lock rows in address order so concurrent routes cannot deadlock
	first, second := from, to
	if first.String() > second.String() {
		first, second = second, first
	}
	locked := make(map[solana.PublicKey]*domain.Vault, 2)
	for _, addr := range []solana.PublicKey{first, second} {
		if _, ok := locked[addr]; ok {
			continue
		}
		v, err := loadVault(ctx, t.tx, addr, true)
		if err != nil {
			return fmt.Errorf("transfer: %w", err)
		}
		locked[addr] = v
	}
	src, dst := locked[from], locked[to]

	if !src.Owner.Equals(authority) {
		return fmt.Errorf("transfer from %s: %w", from, domain.ErrUnauthorized)
	}
	if !src.Mint.Equals(dst.Mint) {
		return fmt.Errorf("transfer %s -> %s: %w", from, to, domain.ErrMintMismatch)
	}
	if src.Balance < amount {
		return fmt.Errorf("transfer %d from %s (balance %d): %w", amount, from, src.Balance, domain.ErrInsufficientFunds)
	}
	if !from.Equals(to) && dst.Balance+amount < dst.Balance {
		return fmt.Errorf("transfer to %s: %w", to, domain.ErrBalanceOverflow)
	}

	amt := decimal.NewFromUint64(amount)
	if _, err := t.tx.Exec(ctx, `UPDATE vaults SET balance = balance - $1::numeric WHERE address = $2`, amt, from.String()); err != nil {
		return fmt.Errorf("pg: debit %s: %w", from, err)
	}
	if _, err := t.tx.Exec(ctx, `UPDATE vaults SET balance = balance + $1::numeric WHERE address = $2`, amt, to.String()); err != nil {
		return fmt.Errorf("pg: credit %s: %w", to, err)
	}
	if _, err := t.tx.Exec(ctx, `
INSERT INTO vault_transfers(id, tx_id, from_vault, to_vault, amount, authority)
VALUES($1,$2,$3,$4,$5::numeric,$6)
`, uuid.New(), t.id, from.String(), to.String(), amt, authority.String()); err != nil {
		return fmt.Errorf("pg: journal transfer: %w", err)
	}
	return nil
}

func (t *pgTx) OnRollback(undo func()) {
	t.undo = append(t.undo, undo)
}

func (t *pgTx) Commit(ctx context.Context) error {
	if t.done {
		return domain.ErrTxDone
	}
	if err := t.tx.Commit(ctx); err != nil {
		// pgx has already rolled back; external state must follow
		t.runUndo()
		return fmt.Errorf("pg: commit: %w", err)
	}
	t.done = true
	t.undo = nil
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if t.done {
		return domain.ErrTxDone
	}
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		t.logger.Error("rollback failed", "tx", t.id, "error", err)
	}
	t.runUndo()
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (t *pgTx) runUndo() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.done = true
}
