// Package auth signs and verifies the per-request capability grants a
// principal hands to the router.
package auth

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/olyamironova/swap-router/internal/domain"
)

var (
	ErrBadSignature = errors.New("grant signature does not verify")
	ErrMalformed    = errors.New("malformed grant")
)

var messagePrefix = []byte("swaprouter-grant-v1:")

// Message is the byte string a grant signature covers.
func Message(g domain.Grant) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(messagePrefix)
	if err := bin.NewBorshEncoder(&buf).Encode(g); err != nil {
		return nil, fmt.Errorf("encode grant: %w", err)
	}
	return buf.Bytes(), nil
}

func Sign(g domain.Grant, key solana.PrivateKey) (domain.SignedGrant, error) {
	if !key.PublicKey().Equals(g.Principal) {
		return domain.SignedGrant{}, fmt.Errorf("sign grant: key %s is not principal %s", key.PublicKey(), g.Principal)
	}
	msg, err := Message(g)
	if err != nil {
		return domain.SignedGrant{}, err
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return domain.SignedGrant{}, fmt.Errorf("sign grant: %w", err)
	}
	return domain.SignedGrant{Grant: g, Signature: sig}, nil
}

func Verify(sg domain.SignedGrant) error {
	msg, err := Message(sg.Grant)
	if err != nil {
		return err
	}
	if !sg.Signature.Verify(sg.Grant.Principal, msg) {
		return ErrBadSignature
	}
	return nil
}

// EncodeSigned serializes a signed grant for transport as base58 text.
func EncodeSigned(sg domain.SignedGrant) (string, error) {
	var buf bytes.Buffer
	if err := bin.NewBorshEncoder(&buf).Encode(sg); err != nil {
		return "", fmt.Errorf("encode signed grant: %w", err)
	}
	return base58.Encode(buf.Bytes()), nil
}

func DecodeSigned(s string) (domain.SignedGrant, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return domain.SignedGrant{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var sg domain.SignedGrant
	if err := bin.NewBorshDecoder(raw).Decode(&sg); err != nil {
		return domain.SignedGrant{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return sg, nil
}
