package orderbook

import (
	"testing"
	"time"

	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/shopspring/decimal"
)

func rest(t *testing.T, ob *OrderBook, side domain.Side, price string, qty uint64) *domain.Order {
	t.Helper()
	o := &domain.Order{ID: price + string(side), Side: side, Price: decimal.RequireFromString(price), Quantity: qty}
	if err := ob.AddOrder(o); err != nil {
		t.Fatalf("add %s %d@%s: %v", side, qty, price, err)
	}
	return o
}

func TestSellIntoBids_WalksLevels(t *testing.T) {
	ob := NewOrderBook("AB")
	rest(t, ob, domain.Buy, "1.5", 100)
	rest(t, ob, domain.Buy, "2", 100)

	ex, err := ob.sellIntoBids(150, 0, time.Now())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if ex.consumed != 150 || ex.produced != 275 || ex.fills != 2 {
		t.Fatalf("unexpected execution %+v", ex)
	}
	if len(ob.Buy) != 1 || ob.Buy[0].Remaining != 50 || ob.Buy[0].Status != domain.PartiallyFilled {
		t.Fatalf("unexpected bids after match: %+v", ob.Buy)
	}
	if len(ob.Events) != 2 {
		t.Fatalf("expected 2 fill events, got %d", len(ob.Events))
	}
}

func TestSellIntoBids_FloorsQuote(t *testing.T) {
	ob := NewOrderBook("AB")
	rest(t, ob, domain.Buy, "0.3", 10)

	ex, err := ob.sellIntoBids(5, 0, time.Now())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if ex.consumed != 5 || ex.produced != 1 {
		t.Fatalf("expected 5 -> 1, got %+v", ex)
	}
}

func TestBuyFromAsks_PartialLevelAbsorbsRemainder(t *testing.T) {
	ob := NewOrderBook("AB")
	rest(t, ob, domain.Sell, "2", 10)
	rest(t, ob, domain.Sell, "3", 10)

	ex, err := ob.buyFromAsks(35, 0, time.Now())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if ex.consumed != 35 || ex.produced != 15 || ex.fills != 2 {
		t.Fatalf("unexpected execution %+v", ex)
	}
	if len(ob.Sell) != 1 || ob.Sell[0].Remaining != 5 {
		t.Fatalf("unexpected asks after match: %+v", ob.Sell)
	}
}

func TestBuyFromAsks_Dust(t *testing.T) {
	ob := NewOrderBook("AB")
	rest(t, ob, domain.Sell, "3", 10)

	ex, err := ob.buyFromAsks(7, 0, time.Now())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if ex.consumed != 7 || ex.produced != 2 {
		t.Fatalf("expected 7 -> 2, got %+v", ex)
	}
	if got := ob.Events[0].QuoteQuantity; got != 7 {
		t.Fatalf("maker should receive the dust, quote quantity %d", got)
	}
}

func TestBuyFromAsks_RemainderTooSmall(t *testing.T) {
	ob := NewOrderBook("AB")
	rest(t, ob, domain.Sell, "10", 10)

	ex, err := ob.buyFromAsks(5, 0, time.Now())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if ex.consumed != 0 || ex.produced != 0 || len(ob.Events) != 0 {
		t.Fatalf("expected no fill, got %+v", ex)
	}
}

func TestMatchLimit(t *testing.T) {
	ob := NewOrderBook("AB")
	rest(t, ob, domain.Buy, "2", 10)
	rest(t, ob, domain.Buy, "1", 10)

	ex, err := ob.sellIntoBids(20, 1, time.Now())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if ex.fills != 1 || ex.consumed != 10 {
		t.Fatalf("match limit not honoured: %+v", ex)
	}
}

func TestAddOrder_Validation(t *testing.T) {
	ob := NewOrderBook("AB")
	rest(t, ob, domain.Sell, "2", 10)
	rest(t, ob, domain.Buy, "1", 10)

	tests := []struct {
		name  string
		side  domain.Side
		price string
		qty   uint64
	}{
		{"zero price", domain.Buy, "0", 1},
		{"zero quantity", domain.Sell, "3", 0},
		{"buy crosses", domain.Buy, "2", 1},
		{"sell crosses", domain.Sell, "1", 1},
		{"bad side", domain.Side("HOLD"), "1.5", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &domain.Order{Side: tt.side, Price: decimal.RequireFromString(tt.price), Quantity: tt.qty}
			if err := ob.AddOrder(o); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestClone_IsIndependent(t *testing.T) {
	ob := NewOrderBook("AB")
	rest(t, ob, domain.Buy, "2", 10)
	cp := ob.clone()

	if _, err := ob.sellIntoBids(10, 0, time.Now()); err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(cp.Buy) != 1 || cp.Buy[0].Remaining != 10 || len(cp.Events) != 0 {
		t.Fatalf("clone was mutated: %+v", cp)
	}
}
