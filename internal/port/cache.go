package port

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/domain"
)

// DepthCache holds depth snapshots keyed by market address. GetDepth
// returns nil, nil on a miss.
type DepthCache interface {
	SetDepth(ctx context.Context, market solana.PublicKey, snap *domain.OrderbookSnapshot) error
	GetDepth(ctx context.Context, market solana.PublicKey) (*domain.OrderbookSnapshot, error)
	Invalidate(ctx context.Context, market solana.PublicKey) error
}
