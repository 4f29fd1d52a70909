package core

import (
	"context"
	"testing"
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/adapter/in_memory"
	"github.com/olyamironova/swap-router/internal/auth"
	"github.com/olyamironova/swap-router/internal/clock"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/genesis"
)

var testDex = solana.MustPublicKeyFromBase58("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")

// A/B sells 1e9 A for 1.8e9 B; C/B buys 16_666_666 C with 1.8e9 B.
func defaultMarkets() []genesis.Market {
	return []genesis.Market{
		{
			Name: "A/B", Base: "A", Quote: "B",
			Bids: []genesis.Level{{Price: "2", Quantity: 600_000_000}, {Price: "1.5", Quantity: 1_000_000_000}},
			Asks: []genesis.Level{{Price: "3", Quantity: 1_000_000_000}},
		},
		{
			Name: "C/B", Base: "C", Quote: "B",
			Bids: []genesis.Level{{Price: "90", Quantity: 10_000_000}},
			Asks: []genesis.Level{{Price: "100", Quantity: 10_000_000}, {Price: "120", Quantity: 10_000_000}},
		},
		{
			Name: "D/C", Base: "D", Quote: "C",
			Asks: []genesis.Level{{Price: "0.5", Quantity: 1_000_000_000}},
		},
	}
}

func defaultBalances() map[string]uint64 {
	return map[string]uint64{"A": 5_000_000_000, "B": 1_000_000, "C": 0, "D": 0}
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	ledger    *in_memory.Ledger
	world     *genesis.World
	mock      *bclock.Mock
	clock     *clock.SlotClock
	router    *Router
	key       solana.PrivateKey
	principal solana.PublicKey
	nonce     uint64
	tracked   []solana.PublicKey
}

func newFixture(t *testing.T, markets []genesis.Market, balances map[string]uint64) *fixture {
	t.Helper()
	ctx := context.Background()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	ledger := in_memory.NewLedger()
	world, err := genesis.Build(ctx, testDex, genesis.Config{
		Markets:  markets,
		Accounts: []genesis.Account{{Owner: key.PublicKey().String(), Balances: balances}},
	}, ledger)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	mock := bclock.NewMock()
	slots := clock.NewSlotClock(mock, mock.Now(), 0)

	f := &fixture{
		t:         t,
		ctx:       ctx,
		ledger:    ledger,
		world:     world,
		mock:      mock,
		clock:     slots,
		router:    NewRouter(ledger, world.Registry, slots, nil, WithCache(in_memory.NewCache())),
		key:       key,
		principal: key.PublicKey(),
	}
	for symbol := range balances {
		f.tracked = append(f.tracked, f.vault(symbol))
	}
	for _, m := range world.Markets {
		f.tracked = append(f.tracked, m.Ref().BaseVault, m.Ref().QuoteVault)
	}
	return f
}

func (f *fixture) vault(symbol string) solana.PublicKey {
	f.t.Helper()
	addr, err := genesis.VaultAddress(f.principal, symbol)
	if err != nil {
		f.t.Fatalf("vault address: %v", err)
	}
	return addr
}

func (f *fixture) ref(name string) domain.MarketRef {
	f.t.Helper()
	m, ok := f.world.Markets[name]
	if !ok {
		f.t.Fatalf("no market %q", name)
	}
	return m.Ref()
}

// route builds a signed request that may spend exactly amount from the
// input vault.
func (f *fixture) route(from, to string, symbols [3]string, amount, minOut uint64, hint domain.SideHint) ExecuteParams {
	f.t.Helper()
	p := ExecuteParams{
		Request: domain.SwapRequest{
			ExactInputAmount:    amount,
			MinimumOutputAmount: minOut,
			Deadline:            domain.NoDeadline,
			SideHint:            hint,
		},
		From: f.ref(from),
		To:   f.ref(to),
		Accounts: domain.RouteAccounts{
			InputVault:        f.vault(symbols[0]),
			IntermediateVault: f.vault(symbols[1]),
			OutputVault:       f.vault(symbols[2]),
			Principal:         f.principal,
			TokenProgram:      solana.TokenProgramID,
			DexProgram:        testDex,
		},
	}
	f.sign(&p, amount)
	return p
}

func (f *fixture) sign(p *ExecuteParams, allowance uint64) {
	f.t.Helper()
	f.nonce++
	sg, err := auth.Sign(domain.Grant{
		Principal:     f.principal,
		Vaults:        []domain.VaultAllowance{{Vault: p.Accounts.InputVault, MaxDebit: allowance}},
		ExpiresAtSlot: f.clock.Slot() + 1_000,
		Nonce:         f.nonce,
	}, f.key)
	if err != nil {
		f.t.Fatalf("sign grant: %v", err)
	}
	p.Grant = &sg
}

// forward is A -> B -> C: sell A into the A/B bids, buy C from the C/B asks.
func (f *fixture) forward(amount, minOut uint64) ExecuteParams {
	return f.route("A/B", "C/B", [3]string{"A", "B", "C"}, amount, minOut, domain.HintBidAsk)
}

func (f *fixture) balance(addr solana.PublicKey) uint64 {
	f.t.Helper()
	v, err := f.ledger.Vault(f.ctx, addr)
	if err != nil {
		f.t.Fatalf("vault %s: %v", addr, err)
	}
	return v.Balance
}

func (f *fixture) balances() map[solana.PublicKey]uint64 {
	res := make(map[solana.PublicKey]uint64, len(f.tracked))
	for _, addr := range f.tracked {
		res[addr] = f.balance(addr)
	}
	return res
}

func (f *fixture) assertUnchanged(before map[solana.PublicKey]uint64) {
	f.t.Helper()
	for addr, want := range before {
		if got := f.balance(addr); got != want {
			f.t.Errorf("vault %s: balance %d, want %d", addr, got, want)
		}
	}
}

func (f *fixture) depth(name string) *domain.OrderbookSnapshot {
	f.t.Helper()
	snap, err := f.world.Markets[name].Depth(f.ctx)
	if err != nil {
		f.t.Fatalf("depth %s: %v", name, err)
	}
	return snap
}

func (f *fixture) advance(slots uint64) {
	f.mock.Add(time.Duration(slots) * clock.DefaultSlotDuration)
}
