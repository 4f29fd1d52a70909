package in_memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/port"
)

var _ port.Ledger = (*Ledger)(nil)

// Ledger is an in-process vault ledger. Transactions are serialized and undone
// from a transfer journal on rollback.
type Ledger struct {
	sem    chan struct{}
	mu     sync.RWMutex
	vaults map[solana.PublicKey]*domain.Vault
}

func NewLedger() *Ledger {
	return &Ledger{
		sem:    make(chan struct{}, 1),
		vaults: make(map[solana.PublicKey]*domain.Vault),
	}
}

// CreateVault registers an empty or pre-funded vault.
func (l *Ledger) CreateVault(ctx context.Context, v domain.Vault) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v.Address.IsZero() {
		return fmt.Errorf("create vault: zero address")
	}
	if _, ok := l.vaults[v.Address]; ok {
		return fmt.Errorf("create vault %s: already exists", v.Address)
	}
	cp := v
	l.vaults[v.Address] = &cp
	return nil
}

// Deposit credits amount to a vault outside of any route.
func (l *Ledger) Deposit(address solana.PublicKey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.vaults[address]
	if !ok {
		return fmt.Errorf("deposit %s: %w", address, domain.ErrVaultNotFound)
	}
	if v.Balance+amount < v.Balance {
		return fmt.Errorf("deposit %s: %w", address, domain.ErrBalanceOverflow)
	}
	v.Balance += amount
	return nil
}

func (l *Ledger) Vault(ctx context.Context, address solana.PublicKey) (*domain.Vault, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.vaults[address]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", address, domain.ErrVaultNotFound)
	}
	cp := *v
	return &cp, nil
}

func (l *Ledger) BeginTx(ctx context.Context) (port.Tx, error) {
	select {
	case l.sem <- struct{}{}:
		return &memTx{l: l}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type transfer struct {
	from, to *domain.Vault
	amount   uint64
}

type memTx struct {
	l       *Ledger
	journal []transfer
	undo    []func()
	done    bool
}

func (t *memTx) Vault(ctx context.Context, address solana.PublicKey) (*domain.Vault, error) {
	if t.done {
		return nil, domain.ErrTxDone
	}
	return t.l.Vault(ctx, address)
}

func (t *memTx) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64, authority solana.PublicKey) error {
	if t.done {
		return domain.ErrTxDone
	}
	t.l.mu.Lock()
	defer t.l.mu.Unlock()

	src, ok := t.l.vaults[from]
	if !ok {
		return fmt.Errorf("transfer from %s: %w", from, domain.ErrVaultNotFound)
	}
	dst, ok := t.l.vaults[to]
	if !ok {
		return fmt.Errorf("transfer to %s: %w", to, domain.ErrVaultNotFound)
	}
	if !src.Owner.Equals(authority) {
		return fmt.Errorf("transfer from %s: %w", from, domain.ErrUnauthorized)
	}
	if !src.Mint.Equals(dst.Mint) {
		return fmt.Errorf("transfer %s -> %s: %w", from, to, domain.ErrMintMismatch)
	}
	if src.Balance < amount {
		return fmt.Errorf("transfer %d from %s (balance %d): %w", amount, from, src.Balance, domain.ErrInsufficientFunds)
	}
	if src != dst && dst.Balance+amount < dst.Balance {
		return fmt.Errorf("transfer to %s: %w", to, domain.ErrBalanceOverflow)
	}
	src.Balance -= amount
	dst.Balance += amount
	t.journal = append(t.journal, transfer{from: src, to: dst, amount: amount})
	return nil
}

func (t *memTx) OnRollback(undo func()) {
	t.undo = append(t.undo, undo)
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return domain.ErrTxDone
	}
	t.finish()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return domain.ErrTxDone
	}
	t.l.mu.Lock()
	for i := len(t.journal) - 1; i >= 0; i-- {
		tr := t.journal[i]
		tr.to.Balance -= tr.amount
		tr.from.Balance += tr.amount
	}
	t.l.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.finish()
	return nil
}

func (t *memTx) finish() {
	t.done = true
	t.journal = nil
	t.undo = nil
	<-t.l.sem
}
