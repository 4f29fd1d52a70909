package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/api/dto"
	"github.com/olyamironova/swap-router/internal/auth"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/spf13/cobra"
)

type swapFlags struct {
	from         string
	to           string
	hint         string
	minOut       uint64
	deadline     uint64
	matchLimit   uint64
	keypair      string
	feeReferral  string
	grantTTL     uint64
	tokenProgram string
}

var (
	swapOpts  swapFlags
	quoteOpts swapFlags
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount>",
	Short: "Execute a two-hop swap",
	Long: `Swap an exact input amount through two markets in one atomic route.

The input, intermediate and output vaults are the associated token accounts
of the keypair for the mints the two legs touch.

Examples:
  swaprouter swap 1000000000 --from <A/B market> --to <C/B market> --hint bid-ask --min-out 16000000 --keypair id.json
  swaprouter swap 500 --from <m1> --to <m2> --hint ask-ask --deadline-slots 20 --keypair id.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwap(cmd, args[0], swapOpts, false)
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote <amount>",
	Short: "Simulate a two-hop swap without moving funds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwap(cmd, args[0], quoteOpts, true)
	},
}

func bindSwapFlags(cmd *cobra.Command, f *swapFlags) {
	cmd.Flags().StringVar(&f.from, "from", "", "Market address of the first leg (required)")
	cmd.Flags().StringVar(&f.to, "to", "", "Market address of the second leg (required)")
	cmd.Flags().StringVar(&f.hint, "hint", "bid-ask", "Book sides of the two legs: bid-bid, ask-bid, bid-ask or ask-ask")
	cmd.Flags().Uint64Var(&f.minOut, "min-out", 0, "Minimum final output amount")
	cmd.Flags().Uint64Var(&f.deadline, "deadline-slots", 0, "Reject the route this many slots from now (0 for none)")
	cmd.Flags().Uint64Var(&f.matchLimit, "match-limit", 0, "Maximum maker orders matched per leg (0 for unlimited)")
	cmd.Flags().StringVarP(&f.keypair, "keypair", "k", "", "Solana keygen file of the principal (required)")
	cmd.Flags().StringVar(&f.feeReferral, "fee-referral", "", "Vault that receives the referral rebate")
	cmd.Flags().Uint64Var(&f.grantTTL, "grant-ttl", 150, "Slots the signed grant stays valid")
	cmd.Flags().StringVar(&f.tokenProgram, "token-program", solana.TokenProgramID.String(), "Asset transfer authority")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("keypair")
}

func init() {
	bindSwapFlags(swapCmd, &swapOpts)
	bindSwapFlags(quoteCmd, &quoteOpts)
	rootCmd.AddCommand(swapCmd, quoteCmd)
}

func parseHint(s string) (domain.SideHint, error) {
	switch s {
	case "bid-bid":
		return domain.HintBidBid, nil
	case "ask-bid":
		return domain.HintAskBid, nil
	case "bid-ask":
		return domain.HintBidAsk, nil
	case "ask-ask":
		return domain.HintAskAsk, nil
	}
	return 0, fmt.Errorf("unknown side hint %q", s)
}

// routeVaults derives the principal's vaults for the mints the legs touch.
func routeVaults(owner solana.PublicKey, from, to domain.MarketRef, hint domain.SideHint) (in, mid, out solana.PublicKey, err error) {
	inMint, midMint := from.Mints(hint.Leg1())
	_, outMint := to.Mints(hint.Leg2())
	if in, _, err = solana.FindAssociatedTokenAddress(owner, inMint); err != nil {
		return
	}
	if mid, _, err = solana.FindAssociatedTokenAddress(owner, midMint); err != nil {
		return
	}
	out, _, err = solana.FindAssociatedTokenAddress(owner, outMint)
	return
}

type routeInput struct {
	amount uint64
	slot   uint64
	nonce  uint64
	from   dto.MarketAccounts
	to     dto.MarketAccounts
	flags  swapFlags
	key    solana.PrivateKey
	signed bool
}

// buildRequest assembles the wire request and, when signed, a grant that
// lets the router debit exactly amount from the input vault.
func buildRequest(in routeInput) (dto.SwapRequest, error) {
	hint, err := parseHint(in.flags.hint)
	if err != nil {
		return dto.SwapRequest{}, err
	}
	fromRef, err := in.from.ToRef("from")
	if err != nil {
		return dto.SwapRequest{}, err
	}
	toRef, err := in.to.ToRef("to")
	if err != nil {
		return dto.SwapRequest{}, err
	}
	owner := in.key.PublicKey()
	inVault, midVault, outVault, err := routeVaults(owner, fromRef, toRef, hint)
	if err != nil {
		return dto.SwapRequest{}, fmt.Errorf("derive vaults: %w", err)
	}

	req := dto.SwapRequest{
		ExactInputAmount:    strconv.FormatUint(in.amount, 10),
		MinimumOutputAmount: strconv.FormatUint(in.flags.minOut, 10),
		SideHint:            uint8(hint),
		From:                in.from,
		To:                  in.to,
		InputVault:          inVault.String(),
		IntermediateVault:   midVault.String(),
		OutputVault:         outVault.String(),
		Principal:           owner.String(),
		TokenProgram:        in.flags.tokenProgram,
		DexProgram:          in.from.ProgramID,
		FeeReferral:         in.flags.feeReferral,
	}
	if in.flags.deadline > 0 {
		req.Deadline = strconv.FormatUint(in.slot+in.flags.deadline, 10)
	}
	if in.flags.matchLimit > 0 {
		req.MatchLimit = strconv.FormatUint(in.flags.matchLimit, 10)
	}
	if !in.signed {
		return req, nil
	}

	sg, err := auth.Sign(domain.Grant{
		Principal:     owner,
		Vaults:        []domain.VaultAllowance{{Vault: inVault, MaxDebit: in.amount}},
		ExpiresAtSlot: in.slot + in.flags.grantTTL,
		Nonce:         in.nonce,
	}, in.key)
	if err != nil {
		return req, err
	}
	if req.Grant, err = auth.EncodeSigned(sg); err != nil {
		return req, err
	}
	return req, nil
}

func runSwap(cmd *cobra.Command, rawAmount string, flags swapFlags, dryRun bool) error {
	amount, err := strconv.ParseUint(rawAmount, 10, 64)
	if err != nil {
		return fmt.Errorf("amount %q: %w", rawAmount, err)
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(flags.keypair)
	if err != nil {
		return fmt.Errorf("load keypair: %w", err)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Routing..."
		s.Start()
	}
	res, err := route(cmd.Context(), newAPIClient(serverURL), amount, key, flags, dryRun)
	s.Stop()
	if err != nil {
		return err
	}
	return printOutcome(res)
}

func route(ctx context.Context, client *apiClient, amount uint64, key solana.PrivateKey, flags swapFlags, dryRun bool) (dto.SwapResponse, error) {
	from, err := client.Market(ctx, flags.from)
	if err != nil {
		return dto.SwapResponse{}, fmt.Errorf("market %s: %w", flags.from, err)
	}
	to, err := client.Market(ctx, flags.to)
	if err != nil {
		return dto.SwapResponse{}, fmt.Errorf("market %s: %w", flags.to, err)
	}
	slot, err := client.Slot(ctx)
	if err != nil {
		return dto.SwapResponse{}, fmt.Errorf("current slot: %w", err)
	}
	req, err := buildRequest(routeInput{
		amount: amount,
		slot:   slot,
		nonce:  uint64(time.Now().UnixNano()),
		from:   from.Accounts,
		to:     to.Accounts,
		flags:  flags,
		key:    key,
		signed: !dryRun,
	})
	if err != nil {
		return dto.SwapResponse{}, err
	}
	return client.Swap(ctx, req, dryRun)
}

func printOutcome(res dto.SwapResponse) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.DryRun {
		color.Cyan("\nQuote at slot %s", res.Slot)
	} else {
		color.Green("\nSwap committed at slot %s", res.Slot)
	}
	for i, l := range res.Legs {
		fmt.Printf("  leg %d: in %s, out %s, fee %s, fills %d\n", i+1, l.InputConsumed, l.OutputProduced, l.FeePaid, l.Fills)
	}
	color.New(color.Bold).Printf("  final output: %s\n\n", res.FinalOutputAmount)
	return nil
}
