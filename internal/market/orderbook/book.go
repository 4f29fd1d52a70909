package orderbook

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/shopspring/decimal"
)

var errAmountOverflow = errors.New("fill amount overflows u64")

// OrderBook holds resting maker orders and the fill event queue.
type OrderBook struct {
	Symbol string
	Buy    []*domain.Order
	Sell   []*domain.Order
	Events []domain.FillEvent
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{Symbol: symbol}
}

// execution is the outcome of matching one marketable order.
type execution struct {
	consumed uint64
	produced uint64
	fills    int
}

// AddOrder rests a post-only limit order. Orders that would cross the book
// are rejected: makers never match each other here.
func (ob *OrderBook) AddOrder(o *domain.Order) error {
	if !o.Price.IsPositive() {
		return fmt.Errorf("price must be > 0")
	}
	if o.Quantity == 0 {
		return fmt.Errorf("quantity must be > 0")
	}
	if o.Side == domain.Buy && len(ob.Sell) > 0 && o.Price.GreaterThanOrEqual(ob.Sell[0].Price) {
		return fmt.Errorf("buy at %s crosses best ask %s", o.Price, ob.Sell[0].Price)
	}
	if o.Side == domain.Sell && len(ob.Buy) > 0 && o.Price.LessThanOrEqual(ob.Buy[0].Price) {
		return fmt.Errorf("sell at %s crosses best bid %s", o.Price, ob.Buy[0].Price)
	}
	o.Remaining = o.Quantity
	o.Status = domain.Open
	switch o.Side {
	case domain.Buy:
		ob.Buy = append(ob.Buy, o)
		ob.sortBuy()
	case domain.Sell:
		ob.Sell = append(ob.Sell, o)
		ob.sortSell()
	default:
		return fmt.Errorf("invalid side: %s", o.Side)
	}
	return nil
}

// sellIntoBids spends base units against the bids, best price first.
func (ob *OrderBook) sellIntoBids(input, matchLimit uint64, now time.Time) (execution, error) {
	var ex execution
	remaining := input
	for len(ob.Buy) > 0 && remaining > 0 && !limitReached(ex.fills, matchLimit) {
		best := ob.Buy[0]
		qty := min(remaining, best.Remaining)
		quote, err := toUint64(decimal.NewFromUint64(qty).Mul(best.Price).Floor())
		if err != nil {
			return ex, err
		}
		if ex.produced+quote < ex.produced {
			return ex, errAmountOverflow
		}
		remaining -= qty
		ex.consumed += qty
		ex.produced += quote
		ex.fills++
		ob.recordFill(best, domain.Bid, qty, quote, now)
		if best.Remaining == 0 {
			ob.Buy = ob.Buy[1:]
		}
	}
	return ex, nil
}

// buyFromAsks spends quote units against the asks, best price first. A
// fully taken level costs ceil(qty*price); a partially taken level absorbs
// the taker's whole remaining input.
func (ob *OrderBook) buyFromAsks(input, matchLimit uint64, now time.Time) (execution, error) {
	var ex execution
	remaining := input
	for len(ob.Sell) > 0 && remaining > 0 && !limitReached(ex.fills, matchLimit) {
		best := ob.Sell[0]
		levelCost := decimal.NewFromUint64(best.Remaining).Mul(best.Price).Ceil()
		var qty, cost uint64
		if levelCost.LessThanOrEqual(decimal.NewFromUint64(remaining)) {
			c, err := toUint64(levelCost)
			if err != nil {
				return ex, err
			}
			qty, cost = best.Remaining, c
		} else {
			q, _ := decimal.NewFromUint64(remaining).QuoRem(best.Price, 0)
			n, err := toUint64(q)
			if err != nil {
				return ex, err
			}
			if n == 0 {
				// remainder cannot buy a single unit at the best price
				break
			}
			qty, cost = n, remaining
		}
		if ex.produced+qty < ex.produced {
			return ex, errAmountOverflow
		}
		remaining -= cost
		ex.consumed += cost
		ex.produced += qty
		ex.fills++
		ob.recordFill(best, domain.Ask, qty, cost, now)
		if best.Remaining == 0 {
			ob.Sell = ob.Sell[1:]
		}
	}
	return ex, nil
}

func (ob *OrderBook) recordFill(maker *domain.Order, takerSide domain.BookSide, base, quote uint64, now time.Time) {
	maker.Remaining -= base
	maker.UpdatedAt = now
	if maker.Remaining == 0 {
		maker.Status = domain.Filled
	} else {
		maker.Status = domain.PartiallyFilled
	}
	ob.Events = append(ob.Events, domain.FillEvent{
		ID:            uuid.NewString(),
		Market:        ob.Symbol,
		MakerOrder:    maker.ID,
		TakerSide:     takerSide,
		Price:         maker.Price,
		BaseQuantity:  base,
		QuoteQuantity: quote,
		Timestamp:     now,
	})
}

// clone copies the book deeply enough that matching on the original cannot
// change the copy.
func (ob *OrderBook) clone() *OrderBook {
	cp := &OrderBook{
		Symbol: ob.Symbol,
		Buy:    cloneOrders(ob.Buy),
		Sell:   cloneOrders(ob.Sell),
		Events: make([]domain.FillEvent, len(ob.Events)),
	}
	copy(cp.Events, ob.Events)
	return cp
}

func cloneOrders(orders []*domain.Order) []*domain.Order {
	res := make([]*domain.Order, len(orders))
	for i, o := range orders {
		c := *o
		res[i] = &c
	}
	return res
}

func (ob *OrderBook) sortBuy() {
	sort.SliceStable(ob.Buy, func(i, j int) bool {
		return ob.Buy[i].Price.GreaterThan(ob.Buy[j].Price)
	})
}

func (ob *OrderBook) sortSell() {
	sort.SliceStable(ob.Sell, func(i, j int) bool {
		return ob.Sell[i].Price.LessThan(ob.Sell[j].Price)
	})
}

func limitReached(fills int, matchLimit uint64) bool {
	return matchLimit > 0 && uint64(fills) >= matchLimit
}

func toUint64(d decimal.Decimal) (uint64, error) {
	bi := d.BigInt()
	if bi.Sign() < 0 || !bi.IsUint64() {
		return 0, errAmountOverflow
	}
	return bi.Uint64(), nil
}
