package market

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/port"
)

var _ port.MarketRegistry = (*Registry)(nil)

// Registry resolves market addresses to loaded markets.
type Registry struct {
	mu      sync.RWMutex
	markets map[solana.PublicKey]port.Market
}

func NewRegistry() *Registry {
	return &Registry{markets: make(map[solana.PublicKey]port.Market)}
}

func (r *Registry) Register(m port.Market) error {
	addr := m.Ref().Market
	if addr.IsZero() {
		return fmt.Errorf("register market: zero address")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[addr]; ok {
		return fmt.Errorf("register market %s: already registered", addr)
	}
	r.markets[addr] = m
	return nil
}

func (r *Registry) Load(ctx context.Context, address solana.PublicKey) (port.Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[address]
	if !ok {
		return nil, fmt.Errorf("market %s not loaded: %w", address, domain.ErrMarketUnavailable)
	}
	return m, nil
}

// List returns the registered markets ordered by address.
func (r *Registry) List() []port.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]port.Market, 0, len(r.markets))
	for _, m := range r.markets {
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Ref().Market.String() < res[j].Ref().Market.String()
	})
	return res
}
