package domain

// Outcome classifies the result of a release attempt. The string values are
// stable and safe to place in redirect query strings.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeAlreadyReleased   Outcome = "already_released"
	OutcomeInvalidPassphrase Outcome = "invalid_passphrase"
	OutcomeInsufficientFunds Outcome = "insufficient_funds"
	OutcomeTransferFailed    Outcome = "transfer_failed"
	OutcomeTransferError     Outcome = "transfer_error"
	OutcomeNotFound          Outcome = "not_found"
)

// AllOutcomes lists every outcome in a stable order.
func AllOutcomes() []Outcome {
	return []Outcome{
		OutcomeSuccess,
		OutcomeAlreadyReleased,
		OutcomeInvalidPassphrase,
		OutcomeInsufficientFunds,
		OutcomeTransferFailed,
		OutcomeTransferError,
		OutcomeNotFound,
	}
}

// ParseOutcome maps a code back to an Outcome. Unknown codes report false.
func ParseOutcome(code string) (Outcome, bool) {
	for _, o := range AllOutcomes() {
		if string(o) == code {
			return o, true
		}
	}
	return "", false
}

// Retryable reports whether calling release again may produce a different
// outcome without operator intervention.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeInsufficientFunds, OutcomeTransferFailed, OutcomeTransferError:
		return true
	default:
		return false
	}
}

// Message is the user-facing text for an outcome. It never carries the secret
// or wallet error details.
func (o Outcome) Message() string {
	switch o {
	case OutcomeSuccess:
		return "Funds released successfully!"
	case OutcomeAlreadyReleased:
		return "Funds already released!"
	case OutcomeInvalidPassphrase:
		return "Invalid passphrase!"
	case OutcomeInsufficientFunds:
		return "Minimum amount not met (0.00002 XMR after fees)!"
	case OutcomeTransferFailed:
		return "Funds transfer failed!"
	case OutcomeTransferError:
		return "Funds transfer error, try again later!"
	case OutcomeNotFound:
		return "Contract not found!"
	default:
		return ""
	}
}

// Severity is "success" for a completed release and "error" otherwise.
func (o Outcome) Severity() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "error"
}
