// Package orderbook is an in-process price-time order-book market that
// accepts marketable orders through port.Market.
package orderbook

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/market"
	"github.com/olyamironova/swap-router/internal/port"
	"github.com/shopspring/decimal"
)

var _ port.Market = (*Market)(nil)

type Config struct {
	Ref              domain.MarketRef
	TakerFeeBps      uint64
	ReferralShareBps uint64
}

// Market settles fills between taker vaults and its own base/quote vaults.
// Resting liquidity is backed by those vaults.
type Market struct {
	// route is held by Lock/Unlock for a whole route; mu guards book.
	route  sync.Mutex
	mu     sync.Mutex
	cfg    Config
	book   *OrderBook
	halted atomic.Bool
	now    func() time.Time
}

func New(cfg Config) *Market {
	return &Market{
		cfg:  cfg,
		book: NewOrderBook(cfg.Ref.Market.String()),
		now:  time.Now,
	}
}

func (m *Market) Ref() domain.MarketRef { return m.cfg.Ref }

// Lock serializes routes on this market. SubmitMarketable expects the
// caller to hold it until the surrounding transaction has finished.
func (m *Market) Lock()   { m.route.Lock() }
func (m *Market) Unlock() { m.route.Unlock() }

func (m *Market) Halted() bool { return m.halted.Load() }

func (m *Market) SetHalted(h bool) { m.halted.Store(h) }

// PlaceLimit rests a maker order.
func (m *Market) PlaceLimit(owner solana.PublicKey, side domain.Side, price decimal.Decimal, qty uint64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	o := &domain.Order{
		ID:        uuid.New().String(),
		Owner:     owner,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.book.AddOrder(o); err != nil {
		return nil, fmt.Errorf("market %s: %w", m.cfg.Ref.Market, err)
	}
	return o, nil
}

func (m *Market) SubmitMarketable(ctx context.Context, tx port.Tx, o domain.MarketOrder) (domain.Fill, error) {
	ref := m.cfg.Ref
	inMint, outMint := ref.Mints(o.Side)
	inVault, _ := ref.VaultFor(inMint)
	outVault, _ := ref.VaultFor(outMint)

	if o.InputAmount == 0 {
		return domain.Fill{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.book.clone()
	tx.OnRollback(func() {
		m.mu.Lock()
		m.book = prev
		m.mu.Unlock()
	})

	var (
		ex  execution
		err error
	)
	if o.Side == domain.Ask {
		ex, err = m.book.buyFromAsks(o.InputAmount, o.MatchLimit, m.now())
	} else {
		ex, err = m.book.sellIntoBids(o.InputAmount, o.MatchLimit, m.now())
	}
	if err != nil {
		return domain.Fill{}, fmt.Errorf("market %s: match: %w", ref.Market, err)
	}
	if ex.consumed == 0 {
		return domain.Fill{}, nil
	}

	net, fee := market.TakeFee(ex.produced, m.cfg.TakerFeeBps)
	if err := tx.Transfer(ctx, o.Payer, inVault, ex.consumed, o.Authority); err != nil {
		return domain.Fill{}, fmt.Errorf("market %s: collect input: %w", ref.Market, err)
	}
	if net > 0 {
		if err := tx.Transfer(ctx, outVault, o.Receiver, net, ref.MarketSigner); err != nil {
			return domain.Fill{}, fmt.Errorf("market %s: pay output: %w", ref.Market, err)
		}
	}
	if o.FeeReferral != nil {
		if rebate := market.BpsOf(fee, m.cfg.ReferralShareBps); rebate > 0 {
			if err := tx.Transfer(ctx, outVault, *o.FeeReferral, rebate, ref.MarketSigner); err != nil {
				return domain.Fill{}, fmt.Errorf("market %s: pay referral: %w", ref.Market, err)
			}
		}
	}

	return domain.Fill{
		InputConsumed:  ex.consumed,
		OutputProduced: net,
		FeePaid:        fee,
		MakerFills:     ex.fills,
	}, nil
}

func (m *Market) Depth(ctx context.Context) (*domain.OrderbookSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := &domain.OrderbookSnapshot{
		Symbol:    m.book.Symbol,
		Bids:      make([]domain.Order, 0, len(m.book.Buy)),
		Asks:      make([]domain.Order, 0, len(m.book.Sell)),
		Timestamp: m.now(),
	}
	for _, o := range m.book.Buy {
		snap.Bids = append(snap.Bids, *o)
	}
	for _, o := range m.book.Sell {
		snap.Asks = append(snap.Asks, *o)
	}
	return snap, nil
}

// Events returns a copy of the fill event queue.
func (m *Market) Events() []domain.FillEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.FillEvent, len(m.book.Events))
	copy(res, m.book.Events)
	return res
}
