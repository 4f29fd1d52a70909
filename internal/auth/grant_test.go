package auth

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/domain"
)

func newGrant(t *testing.T) (domain.Grant, solana.PrivateKey) {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	g := domain.Grant{
		Principal: key.PublicKey(),
		Vaults: []domain.VaultAllowance{
			{Vault: solana.NewWallet().PublicKey(), MaxDebit: 1_000_000_000},
			{Vault: solana.NewWallet().PublicKey(), MaxDebit: 0},
		},
		ExpiresAtSlot: 500,
		Nonce:         7,
	}
	return g, key
}

func TestSignVerify(t *testing.T) {
	g, key := newGrant(t)
	sg, err := Sign(g, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := Verify(sg); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerify_TamperedAllowance(t *testing.T) {
	g, key := newGrant(t)
	sg, err := Sign(g, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sg.Grant.Vaults = append([]domain.VaultAllowance(nil), sg.Grant.Vaults...)
	sg.Grant.Vaults[0].MaxDebit++
	if err := Verify(sg); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerify_WrongPrincipal(t *testing.T) {
	g, key := newGrant(t)
	sg, err := Sign(g, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sg.Grant.Principal = solana.NewWallet().PublicKey()
	if err := Verify(sg); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestSign_RejectsForeignKey(t *testing.T) {
	g, _ := newGrant(t)
	other := solana.NewWallet().PrivateKey
	if _, err := Sign(g, other); err == nil {
		t.Fatal("expected error signing with a key that is not the principal")
	}
}

func TestEncodeDecodeSigned(t *testing.T) {
	g, key := newGrant(t)
	sg, err := Sign(g, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	text, err := EncodeSigned(sg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := DecodeSigned(text)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := Verify(back); err != nil {
		t.Fatalf("decoded grant does not verify: %v", err)
	}
	if back.Grant.Nonce != g.Nonce || len(back.Grant.Vaults) != 2 {
		t.Fatalf("decoded grant differs: %+v", back.Grant)
	}
}

func TestDecodeSigned_Garbage(t *testing.T) {
	if _, err := DecodeSigned("0OIl"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
