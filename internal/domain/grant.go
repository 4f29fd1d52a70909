package domain

import "github.com/gagliardetto/solana-go"

// Grant is a per-request capability: the principal allows the router to
// debit the listed vaults up to MaxDebit each, until ExpiresAtSlot.
type Grant struct {
	Principal     solana.PublicKey
	Vaults        []VaultAllowance
	ExpiresAtSlot uint64
	Nonce         uint64
}

type VaultAllowance struct {
	Vault    solana.PublicKey
	MaxDebit uint64
}

type SignedGrant struct {
	Grant     Grant
	Signature solana.Signature
}

// Allowance returns the debit ceiling the grant gives for vault.
func (g Grant) Allowance(vault solana.PublicKey) (uint64, bool) {
	for _, v := range g.Vaults {
		if v.Vault.Equals(vault) {
			return v.MaxDebit, true
		}
	}
	return 0, false
}
