package policy

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"xmr-escrow/go-backend/internal/domains/escrow/ports"

	"github.com/mr-tron/base58/base58"
	"github.com/tyler-smith/go-bip39"
)

const (
	SecretPolicyMnemonic = "mnemonic"
	SecretPolicyToken    = "token"

	defaultMnemonicEntropyBits = 128
	defaultTokenBytes          = 16
)

var ErrUnknownSecretPolicy = errors.New("unknown secret policy")

// MnemonicSecretPolicy issues BIP-39 word-list secrets.
type MnemonicSecretPolicy struct {
	EntropyBits int
}

func (p MnemonicSecretPolicy) Name() string { return SecretPolicyMnemonic }

func (p MnemonicSecretPolicy) NewSecret() (string, error) {
	bits := p.EntropyBits
	if bits == 0 {
		bits = defaultMnemonicEntropyBits
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// TokenSecretPolicy issues short base58 secrets from crypto/rand bytes.
type TokenSecretPolicy struct {
	Bytes int
}

func (p TokenSecretPolicy) Name() string { return SecretPolicyToken }

func (p TokenSecretPolicy) NewSecret() (string, error) {
	size := p.Bytes
	if size <= 0 {
		size = defaultTokenBytes
	}
	if size < 8 {
		return "", fmt.Errorf("token secret needs at least 8 bytes, got %d", size)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base58.Encode(buf), nil
}

// NewSecretPolicy resolves a policy by name. An empty name selects the
// mnemonic policy.
func NewSecretPolicy(name string) (ports.SecretPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SecretPolicyMnemonic:
		return MnemonicSecretPolicy{}, nil
	case SecretPolicyToken:
		return TokenSecretPolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSecretPolicy, name)
	}
}
