package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/olyamironova/swap-router/internal/auth"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// ExecuteParams is one routing request: the positional parameters, the two
// market account groups and the top-level accounts.
type ExecuteParams struct {
	Request  domain.SwapRequest
	From     domain.MarketRef
	To       domain.MarketRef
	Accounts domain.RouteAccounts
	// Grant authorizes the debits. Execute requires it; Quote ignores it.
	Grant *domain.SignedGrant
}

// Router executes two-hop swaps as a single unit of work.
type Router struct {
	ledger       port.Ledger
	markets      port.MarketRegistry
	clock        port.Clock
	cache        port.DepthCache
	legs         *LegExecutor
	logger       *slog.Logger
	tracer       trace.Tracer
	meters       metric.MeterProvider
	metrics      *Metrics
	tokenProgram solana.PublicKey
	observers    []port.RouteObserver

	nonceMu sync.Mutex
	nonces  map[nonceKey]uint64
}

type nonceKey struct {
	principal solana.PublicKey
	nonce     uint64
}

type Option func(*Router)

// WithTokenProgram sets the asset-transfer authority requests must name.
func WithTokenProgram(id solana.PublicKey) Option {
	return func(r *Router) { r.tokenProgram = id }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

// WithObserver adds a listener for committed routes.
func WithObserver(o port.RouteObserver) Option {
	return func(r *Router) { r.observers = append(r.observers, o) }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Router) { r.meters = mp }
}

// WithCache sets the depth cache invalidated after a committed route.
func WithCache(c port.DepthCache) Option {
	return func(r *Router) { r.cache = c }
}

func NewRouter(ledger port.Ledger, markets port.MarketRegistry, clk port.Clock, logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		ledger:       ledger,
		markets:      markets,
		clock:        clk,
		logger:       logger.With("component", "router"),
		tracer:       otel.Tracer(instrumentationName),
		meters:       otel.GetMeterProvider(),
		tokenProgram: solana.TokenProgramID,
		nonces:       make(map[nonceKey]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.legs = NewLegExecutor(r.logger, r.tracer)
	m, err := NewMetrics(r.meters)
	if err != nil {
		r.logger.Warn("route metrics disabled", "error", err)
		m, _ = NewMetrics(metricnoop.NewMeterProvider())
	}
	r.metrics = m
	return r
}

// Execute runs leg 1 and leg 2 and the output guard in one transaction.
// On any error nothing the route did stays visible.
func (r *Router) Execute(ctx context.Context, p ExecuteParams) (domain.RouteOutcome, error) {
	return r.run(ctx, p, false)
}

// Quote runs the same pipeline as Execute and always rolls back.
func (r *Router) Quote(ctx context.Context, p ExecuteParams) (domain.RouteOutcome, error) {
	return r.run(ctx, p, true)
}

type route struct {
	id     string
	slot   uint64
	p      ExecuteParams
	m1, m2 port.Market
	// mints of input, intermediate and output
	mints [3]solana.PublicKey
	log   *slog.Logger
	span  trace.Span
}

func (rt *route) enter(ctx context.Context, s domain.RouteState) {
	rt.span.SetAttributes(attribute.String("route.state", string(s)))
	rt.log.DebugContext(ctx, "route state", "state", s)
}

func (r *Router) run(ctx context.Context, p ExecuteParams, dry bool) (out domain.RouteOutcome, err error) {
	op := "route.execute"
	if dry {
		op = "route.quote"
	}
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, op)
	defer span.End()
	defer func() { r.metrics.RecordRoute(ctx, dry, out, err, time.Since(start)) }()

	rt := &route{
		id:   uuid.NewString(),
		slot: r.clock.Slot(),
		p:    p,
		span: span,
	}
	rt.log = r.logger.With("route", rt.id, "dry_run", dry)
	span.SetAttributes(
		attribute.String("route.id", rt.id),
		attribute.Int64("route.slot", int64(rt.slot)),
	)
	rt.enter(ctx, domain.StateValidating)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, domain.Code(err))
			rt.enter(ctx, domain.StateAborted)
			rt.log.InfoContext(ctx, "route aborted", "code", domain.Code(err), "error", err)
		}
	}()

	if p.Request.Deadline < rt.slot {
		return out, fmt.Errorf("%w: slot %d is past deadline %d", domain.ErrDeadlineExceeded, rt.slot, p.Request.Deadline)
	}
	if err := r.validate(rt, dry); err != nil {
		return out, err
	}
	if !dry {
		var release func(keep bool)
		if release, err = r.reserveNonce(p.Grant.Grant); err != nil {
			return out, err
		}
		defer func() { release(err == nil) }()
	}
	if err := r.resolveMarkets(ctx, rt); err != nil {
		return out, err
	}

	unlock := lockMarkets(rt.m1, rt.m2)
	defer unlock()

	body := func(tx port.Tx) error {
		if !dry {
			tx = newScopedTx(tx, p.Grant.Grant)
		}
		out, err = r.execute(ctx, tx, rt)
		return err
	}
	if dry {
		err = dryRun(ctx, r.ledger, body)
	} else {
		err = withTx(ctx, r.ledger, body)
	}
	if err != nil {
		return domain.RouteOutcome{}, err
	}

	if !dry {
		rt.enter(ctx, domain.StateCommitted)
		r.invalidate(ctx, rt)
		r.notify(ctx, rt, out)
	}
	rt.log.InfoContext(ctx, "route complete",
		"input", p.Request.ExactInputAmount,
		"intermediate", out.Legs[0].OutputProduced,
		"output", out.FinalOutputAmount,
	)
	return out, nil
}

func (r *Router) validate(rt *route, dry bool) error {
	req, acc := rt.p.Request, rt.p.Accounts
	switch {
	case req.ExactInputAmount == 0:
		return fmt.Errorf("%w: exact input amount must be > 0", domain.ErrInvalidRequest)
	case !req.SideHint.Valid():
		return fmt.Errorf("%w: side hint %d", domain.ErrInvalidRequest, req.SideHint)
	case acc.Principal.IsZero():
		return fmt.Errorf("%w: principal is required", domain.ErrInvalidRequest)
	case !acc.TokenProgram.Equals(r.tokenProgram):
		return fmt.Errorf("%w: token program %s, want %s", domain.ErrInvalidRequest, acc.TokenProgram, r.tokenProgram)
	case acc.DexProgram.IsZero():
		return fmt.Errorf("%w: dex program is required", domain.ErrInvalidRequest)
	}

	vaults := []solana.PublicKey{acc.InputVault, acc.IntermediateVault, acc.OutputVault}
	if acc.FeeReferral != nil {
		vaults = append(vaults, *acc.FeeReferral)
	}
	for i, v := range vaults {
		if v.IsZero() {
			return fmt.Errorf("%w: route vault %d is empty", domain.ErrInvalidRequest, i)
		}
		for _, w := range vaults[:i] {
			if v.Equals(w) {
				return fmt.Errorf("%w: vault %s appears twice in the route", domain.ErrInvalidRequest, v)
			}
		}
	}

	if dry {
		return nil
	}
	sg := rt.p.Grant
	if sg == nil {
		return fmt.Errorf("%w: grant is required", domain.ErrInvalidRequest)
	}
	if err := auth.Verify(*sg); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	switch {
	case !sg.Grant.Principal.Equals(acc.Principal):
		return fmt.Errorf("%w: grant principal %s does not match %s", domain.ErrInvalidRequest, sg.Grant.Principal, acc.Principal)
	case sg.Grant.ExpiresAtSlot < rt.slot:
		return fmt.Errorf("%w: grant expired at slot %d", domain.ErrInvalidRequest, sg.Grant.ExpiresAtSlot)
	}
	if allowance, _ := sg.Grant.Allowance(acc.InputVault); allowance < req.ExactInputAmount {
		return fmt.Errorf("%w: grant allows %d from the input vault, route needs %d",
			domain.ErrInvalidRequest, allowance, req.ExactInputAmount)
	}
	return nil
}

// reserveNonce rejects a grant that already authorized a committed route.
// The returned func keeps the reservation when the route commits.
func (r *Router) reserveNonce(g domain.Grant) (func(keep bool), error) {
	key := nonceKey{principal: g.Principal, nonce: g.Nonce}
	r.nonceMu.Lock()
	defer r.nonceMu.Unlock()
	if _, ok := r.nonces[key]; ok {
		return nil, fmt.Errorf("%w: grant nonce %d already used", domain.ErrInvalidRequest, g.Nonce)
	}
	now := r.clock.Slot()
	for k, exp := range r.nonces {
		if exp < now {
			delete(r.nonces, k)
		}
	}
	r.nonces[key] = g.ExpiresAtSlot
	return func(keep bool) {
		if keep {
			return
		}
		r.nonceMu.Lock()
		delete(r.nonces, key)
		r.nonceMu.Unlock()
	}, nil
}

func (r *Router) resolveMarkets(ctx context.Context, rt *route) error {
	from, to := rt.p.From, rt.p.To
	if from.Market.IsZero() || to.Market.IsZero() {
		return fmt.Errorf("%w: market address is required", domain.ErrInvalidRequest)
	}
	if from.Market.Equals(to.Market) {
		return fmt.Errorf("%w: both legs name market %s", domain.ErrInvalidRequest, from.Market)
	}

	var err error
	if rt.m1, err = r.loadMarket(ctx, from, rt.p.Accounts.DexProgram); err != nil {
		return err
	}
	if rt.m2, err = r.loadMarket(ctx, to, rt.p.Accounts.DexProgram); err != nil {
		return err
	}

	hint := rt.p.Request.SideHint
	in1, out1 := from.Mints(hint.Leg1())
	in2, out2 := to.Mints(hint.Leg2())
	if !out1.Equals(in2) {
		return fmt.Errorf("%w: leg 1 produces %s but leg 2 consumes %s", domain.ErrInvalidRequest, out1, in2)
	}
	rt.mints = [3]solana.PublicKey{in1, out1, out2}
	return nil
}

func (r *Router) loadMarket(ctx context.Context, ref domain.MarketRef, program solana.PublicKey) (port.Market, error) {
	m, err := r.markets.Load(ctx, ref.Market)
	if err != nil {
		if errors.Is(err, domain.ErrMarketUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load %s: %w", domain.ErrMarketUnavailable, ref.Market, err)
	}
	loaded := m.Ref()
	switch {
	case loaded != ref:
		return nil, fmt.Errorf("%w: accounts supplied for %s do not match the loaded market", domain.ErrMarketUnavailable, ref.Market)
	case !loaded.ProgramID.Equals(program):
		return nil, fmt.Errorf("%w: market %s is owned by %s, not %s", domain.ErrMarketUnavailable, ref.Market, loaded.ProgramID, program)
	case m.Halted():
		return nil, fmt.Errorf("%w: market %s is halted", domain.ErrMarketUnavailable, ref.Market)
	}
	return m, nil
}

// lockMarkets locks both markets in address order.
func lockMarkets(a, b port.Market) func() {
	ka, kb := a.Ref().Market, b.Ref().Market
	if bytes.Compare(ka[:], kb[:]) > 0 {
		a, b = b, a
	}
	a.Lock()
	b.Lock()
	return func() {
		b.Unlock()
		a.Unlock()
	}
}

func (r *Router) execute(ctx context.Context, tx port.Tx, rt *route) (domain.RouteOutcome, error) {
	req, acc := rt.p.Request, rt.p.Accounts

	vaults := [3]solana.PublicKey{acc.InputVault, acc.IntermediateVault, acc.OutputVault}
	var intermediateBefore uint64
	for i, addr := range vaults {
		v, err := tx.Vault(ctx, addr)
		if err != nil {
			return domain.RouteOutcome{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		if !v.Owner.Equals(acc.Principal) {
			return domain.RouteOutcome{}, fmt.Errorf("%w: vault %s is owned by %s, not the principal", domain.ErrInvalidRequest, addr, v.Owner)
		}
		if !v.Mint.Equals(rt.mints[i]) {
			return domain.RouteOutcome{}, fmt.Errorf("%w: vault %s holds %s, route needs %s", domain.ErrInvalidRequest, addr, v.Mint, rt.mints[i])
		}
		if i == 1 {
			intermediateBefore = v.Balance
		}
	}

	ref1, ref2, err := r.referrals(ctx, tx, rt)
	if err != nil {
		return domain.RouteOutcome{}, err
	}

	hint := req.SideHint
	rt.enter(ctx, domain.StateLeg1Executing)
	leg1, err := r.legs.Execute(ctx, tx, LegParams{
		Market:      rt.m1,
		Side:        hint.Leg1(),
		Payer:       acc.InputVault,
		Receiver:    acc.IntermediateVault,
		Principal:   acc.Principal,
		InputAmount: req.ExactInputAmount,
		MatchLimit:  req.MatchLimit,
		FeeReferral: ref1,
	})
	if err != nil {
		return domain.RouteOutcome{}, fmt.Errorf("leg 1: %w", err)
	}

	rt.enter(ctx, domain.StateLeg2Executing)
	leg2, err := r.legs.Execute(ctx, tx, LegParams{
		Market:      rt.m2,
		Side:        hint.Leg2(),
		Payer:       acc.IntermediateVault,
		Receiver:    acc.OutputVault,
		Principal:   acc.Principal,
		InputAmount: leg1.OutputProduced,
		MatchLimit:  req.MatchLimit,
		FeeReferral: ref2,
	})
	if err != nil {
		return domain.RouteOutcome{}, fmt.Errorf("leg 2: %w", err)
	}

	rt.enter(ctx, domain.StateGuardChecking)
	if leg2.OutputProduced < req.MinimumOutputAmount {
		return domain.RouteOutcome{}, fmt.Errorf("%w: output %d is below minimum %d",
			domain.ErrSlippageExceeded, leg2.OutputProduced, req.MinimumOutputAmount)
	}
	mid, err := tx.Vault(ctx, acc.IntermediateVault)
	if err != nil {
		return domain.RouteOutcome{}, err
	}
	if mid.Balance != intermediateBefore {
		return domain.RouteOutcome{}, fmt.Errorf("intermediate vault moved from %d to %d", intermediateBefore, mid.Balance)
	}

	return domain.RouteOutcome{
		FinalOutputAmount: leg2.OutputProduced,
		Success:           true,
		Legs:              [2]domain.LegResult{leg1, leg2},
		Slot:              rt.slot,
	}, nil
}

// referrals hands the fee-referral vault to the leg whose output mint it
// holds.
func (r *Router) referrals(ctx context.Context, tx port.Tx, rt *route) (leg1, leg2 *solana.PublicKey, err error) {
	ref := rt.p.Accounts.FeeReferral
	if ref == nil {
		return nil, nil, nil
	}
	v, err := tx.Vault(ctx, *ref)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fee referral: %w", domain.ErrInvalidRequest, err)
	}
	switch {
	case v.Mint.Equals(rt.mints[1]):
		return ref, nil, nil
	case v.Mint.Equals(rt.mints[2]):
		return nil, ref, nil
	}
	return nil, nil, fmt.Errorf("%w: fee referral %s holds %s, which neither leg pays out", domain.ErrInvalidRequest, *ref, v.Mint)
}

func (r *Router) invalidate(ctx context.Context, rt *route) {
	if r.cache == nil {
		return
	}
	for _, m := range []port.Market{rt.m1, rt.m2} {
		addr := m.Ref().Market
		if err := r.cache.Invalidate(ctx, addr); err != nil {
			rt.log.WarnContext(ctx, "depth cache invalidate failed", "market", addr, "error", err)
		}
	}
}

func (r *Router) notify(ctx context.Context, rt *route, out domain.RouteOutcome) {
	if len(r.observers) == 0 {
		return
	}
	ev := domain.RouteEvent{
		ID:        rt.id,
		Slot:      rt.slot,
		Principal: rt.p.Accounts.Principal,
		From:      rt.p.From.Market,
		To:        rt.p.To.Market,
		Input:     rt.p.Request.ExactInputAmount,
		Output:    out.FinalOutputAmount,
		Timestamp: time.Now().UTC(),
	}
	for _, o := range r.observers {
		o.RouteCommitted(ctx, ev)
	}
}
