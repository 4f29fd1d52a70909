package core

import (
	"context"
	"fmt"

	"github.com/olyamironova/swap-router/internal/port"
)

func withTx(ctx context.Context, ledger port.Ledger, fn func(port.Tx) error) (err error) {
	tx, err := ledger.BeginTx(ctx)
	if err != nil {
		return err
	}
	committed := false
	// rollback must run even when the request context is gone
	rbCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(rbCtx)
			panic(r)
		}
		if !committed {
			if rbErr := tx.Rollback(rbCtx); rbErr != nil && err == nil {
				err = fmt.Errorf("rollback: %w", rbErr)
			}
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// dryRun runs fn in a transaction that is always rolled back.
func dryRun(ctx context.Context, ledger port.Ledger, fn func(port.Tx) error) error {
	tx, err := ledger.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()
	return fn(tx)
}
