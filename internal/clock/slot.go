// Package clock turns wall time into ledger slots.
package clock

import (
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/olyamironova/swap-router/internal/port"
)

const DefaultSlotDuration = 400 * time.Millisecond

var _ port.Clock = (*SlotClock)(nil)

// SlotClock reports the number of whole slots elapsed since genesis.
type SlotClock struct {
	clock        bclock.Clock
	genesis      time.Time
	slotDuration time.Duration
}

func NewSlotClock(c bclock.Clock, genesis time.Time, slotDuration time.Duration) *SlotClock {
	if c == nil {
		c = bclock.New()
	}
	if slotDuration <= 0 {
		slotDuration = DefaultSlotDuration
	}
	return &SlotClock{clock: c, genesis: genesis, slotDuration: slotDuration}
}

func (s *SlotClock) Slot() uint64 {
	elapsed := s.clock.Now().Sub(s.genesis)
	if elapsed <= 0 {
		return 0
	}
	return uint64(elapsed / s.slotDuration)
}

// SlotAt returns the first slot that starts at or after t.
func (s *SlotClock) SlotAt(t time.Time) uint64 {
	elapsed := t.Sub(s.genesis)
	if elapsed <= 0 {
		return 0
	}
	return uint64((elapsed + s.slotDuration - 1) / s.slotDuration)
}
