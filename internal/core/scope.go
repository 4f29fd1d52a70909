package core

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/port"
)

// scopedTx limits what the router may move on the principal's behalf to what
// the grant allows. A vault may be debited up to its MaxDebit plus whatever
// the same request credited to it.
type scopedTx struct {
	port.Tx
	grant    domain.Grant
	debited  map[solana.PublicKey]uint64
	credited map[solana.PublicKey]uint64
}

func newScopedTx(tx port.Tx, g domain.Grant) *scopedTx {
	return &scopedTx{
		Tx:       tx,
		grant:    g,
		debited:  make(map[solana.PublicKey]uint64),
		credited: make(map[solana.PublicKey]uint64),
	}
}

func (s *scopedTx) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64, authority solana.PublicKey) error {
	onBehalf := authority.Equals(s.grant.Principal)
	if onBehalf {
		allowance, _ := s.grant.Allowance(from)
		budget := satAdd(allowance, s.credited[from])
		if amount > budget-s.debited[from] {
			return fmt.Errorf("%w: debit of %d from %s exceeds grant (allowance %d, used %d)",
				domain.ErrInvalidRequest, amount, from, budget, s.debited[from])
		}
	}
	if err := s.Tx.Transfer(ctx, from, to, amount, authority); err != nil {
		return err
	}
	if onBehalf {
		s.debited[from] += amount
	}
	s.credited[to] = satAdd(s.credited[to], amount)
	return nil
}

func satAdd(a, b uint64) uint64 {
	if a+b < a {
		return ^uint64(0)
	}
	return a + b
}
