package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LegParams describes one marketable trade.
type LegParams struct {
	Market    port.Market
	Side      domain.BookSide
	Payer     solana.PublicKey
	Receiver  solana.PublicKey
	Principal solana.PublicKey
	// InputAmount must be consumed in full or the leg fails.
	InputAmount uint64
	// MinAcceptableOutput is checked only when non-zero.
	MinAcceptableOutput uint64
	MatchLimit          uint64
	FeeReferral         *solana.PublicKey
}

// LegExecutor trades a fixed input against one market inside the caller's
// transaction.
type LegExecutor struct {
	logger *slog.Logger
	tracer trace.Tracer
}

func NewLegExecutor(logger *slog.Logger, tracer trace.Tracer) *LegExecutor {
	return &LegExecutor{logger: logger, tracer: tracer}
}

func (e *LegExecutor) Execute(ctx context.Context, tx port.Tx, p LegParams) (domain.LegResult, error) {
	ref := p.Market.Ref()
	ctx, span := e.tracer.Start(ctx, "leg.execute", trace.WithAttributes(
		attribute.String("market", ref.Market.String()),
		attribute.String("side", p.Side.String()),
		attribute.Int64("input", int64(p.InputAmount)),
	))
	defer span.End()

	if p.InputAmount == 0 {
		return domain.LegResult{}, fmt.Errorf("%w: market %s: zero input", domain.ErrInsufficientLiquidity, ref.Market)
	}

	fill, err := p.Market.SubmitMarketable(ctx, &legTx{Tx: tx, payer: p.Payer}, domain.MarketOrder{
		Side:        p.Side,
		InputAmount: p.InputAmount,
		MatchLimit:  p.MatchLimit,
		Payer:       p.Payer,
		Receiver:    p.Receiver,
		Authority:   p.Principal,
		FeeReferral: p.FeeReferral,
	})
	if err != nil {
		span.RecordError(err)
		return domain.LegResult{}, err
	}

	res := domain.LegResult{
		InputConsumed:  fill.InputConsumed,
		OutputProduced: fill.OutputProduced,
		FeePaid:        fill.FeePaid,
		Fills:          fill.MakerFills,
	}
	span.SetAttributes(
		attribute.Int64("output", int64(res.OutputProduced)),
		attribute.Int("fills", res.Fills),
	)

	switch {
	case res.InputConsumed == 0 || res.OutputProduced == 0:
		return res, fmt.Errorf("%w: market %s could not fill %d on the %s side",
			domain.ErrInsufficientLiquidity, ref.Market, p.InputAmount, p.Side)
	case res.InputConsumed < p.InputAmount:
		return res, fmt.Errorf("%w: market %s filled %d of %d on the %s side",
			domain.ErrInsufficientLiquidity, ref.Market, res.InputConsumed, p.InputAmount, p.Side)
	case res.InputConsumed > p.InputAmount:
		return res, fmt.Errorf("%w: market %s consumed %d, more than the %d offered",
			domain.ErrMarketUnavailable, ref.Market, res.InputConsumed, p.InputAmount)
	case p.MinAcceptableOutput > 0 && res.OutputProduced < p.MinAcceptableOutput:
		return res, fmt.Errorf("%w: market %s produced %d, leg minimum %d",
			domain.ErrSlippageExceeded, ref.Market, res.OutputProduced, p.MinAcceptableOutput)
	}

	e.logger.DebugContext(ctx, "leg filled",
		"market", ref.Market,
		"side", p.Side,
		"input", res.InputConsumed,
		"output", res.OutputProduced,
		"fee", res.FeePaid,
		"fills", res.Fills,
	)
	return res, nil
}

// legTx classifies transfer failures: a failed debit of the payer is the
// caller's problem, anything else is the market's.
type legTx struct {
	port.Tx
	payer solana.PublicKey
}

func (t *legTx) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64, authority solana.PublicKey) error {
	err := t.Tx.Transfer(ctx, from, to, amount, authority)
	switch {
	case err == nil:
		return nil
	case from.Equals(t.payer):
		if errors.Is(err, domain.ErrInvalidRequest) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrMarketUnavailable, err)
	}
}
