// Package privacylog keeps release secrets and linkable escrow identifiers
// out of log output.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

type treatment int

const (
	keep treatment = iota
	redact
	fingerprint
)

var (
	bootNonce = randomNonce()

	// Values under these keys link a log line to a contract, a wallet or an
	// on-chain transfer.
	linkableKeys = map[string]struct{}{
		"contract_id":      {},
		"recipient_wallet": {},
		"contract_wallet":  {},
		"destination":      {},
		"address":          {},
		"client_ip":        {},
		"tx_hash":          {},
		"tx_hashes":        {},
	}

	// A key is secret when its final segment names a credential, so
	// "rpc_token" is redacted while "secret_policy" is not.
	credentialWords = map[string]struct{}{
		"passphrase":    {},
		"password":      {},
		"mnemonic":      {},
		"secret":        {},
		"token":         {},
		"authorization": {},
	}
)

// SanitizingHandler rewrites attributes before records reach next: secrets
// become [REDACTED], linkable identifiers become per-boot fingerprints under
// a "<key>_fp" key.
type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(SanitizeAttr(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = SanitizeAttr(a)
	}
	return &SanitizingHandler{next: h.next.WithAttrs(clean)}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// SanitizeAttr applies the key rules to one attribute, descending into groups.
func SanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch classify(a.Key) {
	case redact:
		return slog.String(a.Key, redactedValue)
	case fingerprint:
		return slog.String(fingerprintKey(a.Key), fingerprintList(a.Value.String()))
	}
	if a.Value.Kind() != slog.KindGroup {
		return a
	}
	members := a.Value.Group()
	clean := make([]slog.Attr, len(members))
	for i, m := range members {
		clean[i] = SanitizeAttr(m)
	}
	return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
}

// FingerprintID is stable for one process lifetime and unlinkable across restarts.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func classify(key string) treatment {
	k := strings.ToLower(strings.TrimSpace(key))
	if _, ok := linkableKeys[k]; ok {
		return fingerprint
	}
	segments := strings.FieldsFunc(k, func(r rune) bool { return r == '_' || r == '.' || r == '-' })
	if len(segments) == 0 {
		return keep
	}
	if _, ok := credentialWords[segments[len(segments)-1]]; ok {
		return redact
	}
	return keep
}

func fingerprintKey(key string) string {
	if strings.HasSuffix(key, "_fp") {
		return key
	}
	return key + "_fp"
}

// fingerprintList fingerprints each element of a comma separated value, so a
// tx hash list keeps its length without exposing the hashes.
func fingerprintList(value string) string {
	if !strings.Contains(value, ",") {
		return FingerprintID(value)
	}
	parts := strings.Split(value, ",")
	for i, p := range parts {
		parts[i] = FingerprintID(p)
	}
	return strings.Join(parts, ",")
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
