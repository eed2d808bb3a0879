package escrowd

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"xmr-escrow/go-backend/internal/bootstrap/escrowconfig"
	"xmr-escrow/go-backend/internal/platform/privacylog"
)

// NewLogger builds the process logger. Every record passes through the
// privacy sanitizer, whatever the output format.
func NewLogger(cfg escrowconfig.LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(privacylog.WrapHandler(h))
}

func parseLevel(raw string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
