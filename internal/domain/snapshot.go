package domain

import "time"

type OrderbookSnapshot struct {
	Bids      []Order
	Asks      []Order
	Timestamp time.Time
	Symbol    string
}

func (s *OrderbookSnapshot) DeepCopy() *OrderbookSnapshot {
	if s == nil {
		return nil
	}
	cp := &OrderbookSnapshot{
		Bids:      make([]Order, len(s.Bids)),
		Asks:      make([]Order, len(s.Asks)),
		Timestamp: s.Timestamp,
		Symbol:    s.Symbol,
	}
	copy(cp.Bids, s.Bids)
	copy(cp.Asks, s.Asks)
	return cp
}
