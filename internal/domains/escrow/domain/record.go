package domain

import "strings"

// ContractRecord is the persisted escrow contract. Every field except
// Released is fixed at creation; Released only ever moves false -> true.
type ContractRecord struct {
	ContractID      string `json:"contract_id"`
	Secret          string `json:"secret"`
	RecipientWallet string `json:"recipient_wallet"`
	ContractWallet  string `json:"contract_wallet"`
	AddressIndex    uint32 `json:"address_index"`
	ContractText    string `json:"contract_text"`
	Released        bool   `json:"released"`
}

// Validate checks the creation-time invariants of a record.
func (r ContractRecord) Validate() error {
	switch {
	case strings.TrimSpace(r.ContractID) == "":
		return ErrInvalidRecord("contract id is required")
	case r.Secret == "":
		return ErrInvalidRecord("secret is required")
	case strings.TrimSpace(r.RecipientWallet) == "":
		return ErrInvalidRecord("recipient wallet is required")
	case strings.TrimSpace(r.ContractWallet) == "":
		return ErrInvalidRecord("contract wallet is required")
	}
	return nil
}

// SameImmutableFields reports whether two records agree on every field that
// is fixed at creation.
func (r ContractRecord) SameImmutableFields(other ContractRecord) bool {
	return r.ContractID == other.ContractID &&
		r.Secret == other.Secret &&
		r.RecipientWallet == other.RecipientWallet &&
		r.ContractWallet == other.ContractWallet &&
		r.AddressIndex == other.AddressIndex &&
		r.ContractText == other.ContractText
}

// Balance is an atomic-unit balance snapshot for one subaddress.
type Balance struct {
	Confirmed uint64 `json:"balance"`
	Unlocked  uint64 `json:"unlocked_balance"`
}

// Subaddress is a provisioned receiving address and its wallet index.
type Subaddress struct {
	Address string
	Index   uint32
}
