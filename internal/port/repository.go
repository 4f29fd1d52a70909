package port

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/domain"
)

// Ledger is the atomic execution substrate: everything done through one Tx
// either commits together or is undone together.
type Ledger interface {
	BeginTx(ctx context.Context) (Tx, error)
	Vault(ctx context.Context, address solana.PublicKey) (*domain.Vault, error)
}

type Tx interface {
	Vault(ctx context.Context, address solana.PublicKey) (*domain.Vault, error)
	// Transfer moves amount between two vaults of the same mint. authority
	// must own the source vault.
	Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64, authority solana.PublicKey) error
	// OnRollback registers an undo step for state kept outside the ledger.
	// Undo steps run in reverse registration order.
	OnRollback(undo func())

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Market is an external order-book (or book-like) market.
type Market interface {
	Ref() domain.MarketRef
	Halted() bool
	Lock()
	Unlock()
	SubmitMarketable(ctx context.Context, tx Tx, o domain.MarketOrder) (domain.Fill, error)
	Depth(ctx context.Context) (*domain.OrderbookSnapshot, error)
}

type MarketRegistry interface {
	Load(ctx context.Context, address solana.PublicKey) (Market, error)
	List() []Market
}

// Clock reports the current slot.
type Clock interface {
	Slot() uint64
}

// RouteObserver is told about every committed route. It must not block.
type RouteObserver interface {
	RouteCommitted(ctx context.Context, ev domain.RouteEvent)
}
