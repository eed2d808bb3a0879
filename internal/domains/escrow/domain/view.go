package domain

import (
	"strconv"
)

// AtomicUnitsPerXMR is the number of atomic units in one XMR.
const AtomicUnitsPerXMR = 1_000_000_000_000

// BalanceSnapshot is the display-only balance attached to a contract view.
// Available is false when the wallet could not be queried and the zero
// values were substituted.
type BalanceSnapshot struct {
	Balance   Balance
	Available bool
}

// MessageView is the banner shown after a release attempt.
type MessageView struct {
	Code    string `json:"code"`
	Text    string `json:"text"`
	Type    string `json:"type"`
	Visible bool   `json:"visible"`
}

// ContractView is renderer-agnostic data describing one contract page.
type ContractView struct {
	ContractID        string      `json:"contract_id"`
	RecipientWallet   string      `json:"recipient_wallet"`
	ContractWallet    string      `json:"contract_wallet"`
	ContractText      string      `json:"contract_text"`
	Released          bool        `json:"released"`
	BalanceXMR        string      `json:"balance"`
	UnlockedXMR       string      `json:"unlocked_balance"`
	BalanceAtomic     uint64      `json:"balance_atomic"`
	UnlockedAtomic    uint64      `json:"unlocked_balance_atomic"`
	BalanceAvailable  bool        `json:"balance_available"`
	Message           MessageView `json:"message"`
	ShowReleaseForm   bool        `json:"show_release_form"`
	ShowReleasedNote  bool        `json:"show_released_note"`
	Secret            string      `json:"passphrase,omitempty"`
	ShowSecretWarning bool        `json:"show_passphrase_warning"`
}

// BuildView maps a record, a balance snapshot and an optional outcome to a
// view. The secret is included only when revealSecret is set, which callers
// do exactly once, right after creation.
func BuildView(rec ContractRecord, snap BalanceSnapshot, outcome Outcome, revealSecret bool) ContractView {
	view := ContractView{
		ContractID:       rec.ContractID,
		RecipientWallet:  rec.RecipientWallet,
		ContractWallet:   rec.ContractWallet,
		ContractText:     rec.ContractText,
		Released:         rec.Released,
		BalanceXMR:       FormatXMR(snap.Balance.Confirmed),
		UnlockedXMR:      FormatXMR(snap.Balance.Unlocked),
		BalanceAtomic:    snap.Balance.Confirmed,
		UnlockedAtomic:   snap.Balance.Unlocked,
		BalanceAvailable: snap.Available,
		ShowReleaseForm:  !rec.Released,
		ShowReleasedNote: rec.Released,
	}
	if text := outcome.Message(); text != "" {
		view.Message = MessageView{
			Code:    string(outcome),
			Text:    text,
			Type:    outcome.Severity(),
			Visible: true,
		}
	}
	if revealSecret {
		view.Secret = rec.Secret
		view.ShowSecretWarning = true
	}
	return view
}

// FormatXMR renders atomic units as XMR with twelve decimals.
func FormatXMR(atomic uint64) string {
	whole := atomic / AtomicUnitsPerXMR
	frac := atomic % AtomicUnitsPerXMR
	fracText := strconv.FormatUint(frac, 10)
	for len(fracText) < 12 {
		fracText = "0" + fracText
	}
	return strconv.FormatUint(whole, 10) + "." + fracText
}
