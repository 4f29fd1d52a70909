package dto

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/auth"
	"github.com/olyamironova/swap-router/internal/core"
	"github.com/olyamironova/swap-router/internal/domain"
)

// ToParams parses a wire request. Parse failures wrap domain.ErrInvalidRequest.
func (r SwapRequest) ToParams() (core.ExecuteParams, error) {
	var (
		p   core.ExecuteParams
		err error
	)
	p.Request.SideHint = domain.SideHint(r.SideHint)
	if p.Request.ExactInputAmount, err = parseAmount("exact_input_amount", r.ExactInputAmount, 0); err != nil {
		return p, err
	}
	if p.Request.MinimumOutputAmount, err = parseAmount("minimum_output_amount", r.MinimumOutputAmount, 0); err != nil {
		return p, err
	}
	if p.Request.Deadline, err = parseAmount("deadline", r.Deadline, domain.NoDeadline); err != nil {
		return p, err
	}
	if p.Request.MatchLimit, err = parseAmount("match_limit", r.MatchLimit, 0); err != nil {
		return p, err
	}
	if p.From, err = r.From.ToRef("from"); err != nil {
		return p, err
	}
	if p.To, err = r.To.ToRef("to"); err != nil {
		return p, err
	}

	keys := []struct {
		name string
		src  string
		dst  *solana.PublicKey
	}{
		{"input_vault", r.InputVault, &p.Accounts.InputVault},
		{"intermediate_vault", r.IntermediateVault, &p.Accounts.IntermediateVault},
		{"output_vault", r.OutputVault, &p.Accounts.OutputVault},
		{"principal", r.Principal, &p.Accounts.Principal},
		{"token_program", r.TokenProgram, &p.Accounts.TokenProgram},
		{"dex_program", r.DexProgram, &p.Accounts.DexProgram},
	}
	for _, k := range keys {
		if *k.dst, err = parseKey(k.name, k.src); err != nil {
			return p, err
		}
	}
	if r.FeeReferral != "" {
		ref, err := parseKey("fee_referral", r.FeeReferral)
		if err != nil {
			return p, err
		}
		p.Accounts.FeeReferral = &ref
	}
	if r.Grant != "" {
		sg, err := auth.DecodeSigned(r.Grant)
		if err != nil {
			return p, fmt.Errorf("%w: grant: %w", domain.ErrInvalidRequest, err)
		}
		p.Grant = &sg
	}
	return p, nil
}

func (m MarketAccounts) ToRef(group string) (domain.MarketRef, error) {
	var (
		ref domain.MarketRef
		err error
	)
	keys := []struct {
		name string
		src  string
		dst  *solana.PublicKey
	}{
		{"market", m.Market, &ref.Market},
		{"orderbook", m.Orderbook, &ref.Orderbook},
		{"event_queue", m.EventQueue, &ref.EventQueue},
		{"bids", m.Bids, &ref.Bids},
		{"asks", m.Asks, &ref.Asks},
		{"base_vault", m.BaseVault, &ref.BaseVault},
		{"quote_vault", m.QuoteVault, &ref.QuoteVault},
		{"market_signer", m.MarketSigner, &ref.MarketSigner},
		{"base_mint", m.BaseMint, &ref.BaseMint},
		{"quote_mint", m.QuoteMint, &ref.QuoteMint},
		{"program_id", m.ProgramID, &ref.ProgramID},
	}
	for _, k := range keys {
		if *k.dst, err = parseKey(group+"."+k.name, k.src); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

func FromRef(ref domain.MarketRef) MarketAccounts {
	return MarketAccounts{
		Market:       ref.Market.String(),
		Orderbook:    ref.Orderbook.String(),
		EventQueue:   ref.EventQueue.String(),
		Bids:         ref.Bids.String(),
		Asks:         ref.Asks.String(),
		BaseVault:    ref.BaseVault.String(),
		QuoteVault:   ref.QuoteVault.String(),
		MarketSigner: ref.MarketSigner.String(),
		BaseMint:     ref.BaseMint.String(),
		QuoteMint:    ref.QuoteMint.String(),
		ProgramID:    ref.ProgramID.String(),
	}
}

func FromOutcome(out domain.RouteOutcome, dryRun bool) SwapResponse {
	res := SwapResponse{
		FinalOutputAmount: strconv.FormatUint(out.FinalOutputAmount, 10),
		Success:           out.Success,
		Slot:              strconv.FormatUint(out.Slot, 10),
		Legs:              make([]LegResult, 0, len(out.Legs)),
		DryRun:            dryRun,
	}
	for _, l := range out.Legs {
		res.Legs = append(res.Legs, LegResult{
			InputConsumed:  strconv.FormatUint(l.InputConsumed, 10),
			OutputProduced: strconv.FormatUint(l.OutputProduced, 10),
			FeePaid:        strconv.FormatUint(l.FeePaid, 10),
			Fills:          l.Fills,
		})
	}
	return res
}

func FromVault(v *domain.Vault) VaultResponse {
	return VaultResponse{
		Address: v.Address.String(),
		Owner:   v.Owner.String(),
		Mint:    v.Mint.String(),
		Balance: strconv.FormatUint(v.Balance, 10),
	}
}

func FromSnapshot(market string, s *domain.OrderbookSnapshot) OrderbookResponse {
	return OrderbookResponse{
		Market:    market,
		Bids:      levels(s.Bids),
		Asks:      levels(s.Asks),
		Timestamp: s.Timestamp,
	}
}

func levels(orders []domain.Order) []Level {
	res := make([]Level, len(orders))
	for i, o := range orders {
		res[i] = Level{Price: o.Price, Remaining: strconv.FormatUint(o.Remaining, 10), OrderID: o.ID}
	}
	return res
}

func parseAmount(name, s string, empty uint64) (uint64, error) {
	if s == "" {
		return empty, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrInvalidRequest, name, err)
	}
	return v, nil
}

func parseKey(name, s string) (solana.PublicKey, error) {
	k, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidRequest, name, err)
	}
	return k, nil
}

func FromRouteEvent(ev domain.RouteEvent) RouteEvent {
	return RouteEvent{
		ID:        ev.ID,
		Slot:      strconv.FormatUint(ev.Slot, 10),
		Principal: ev.Principal.String(),
		From:      ev.From.String(),
		To:        ev.To.String(),
		Input:     strconv.FormatUint(ev.Input, 10),
		Output:    strconv.FormatUint(ev.Output, 10),
		Timestamp: ev.Timestamp,
	}
}
