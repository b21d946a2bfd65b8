package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shoppulse/pkg/config"
)

// New builds the process logger. Prod emits JSON lines; other environments
// get the human-readable console writer.
func New(cfg config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if !cfg.IsProd() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(out, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
}

func NewWithWriter(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Mask keeps the first and last few characters of a secret so log lines stay
// correlatable without exposing the value.
func Mask(s string) string {
	const keep = 4
	if s == "" {
		return ""
	}
	if len(s) <= keep*2 {
		return strings.Repeat("*", len(s))
	}
	return s[:keep] + strings.Repeat("*", len(s)-keep*2) + s[len(s)-keep:]
}

// MaskEmail hides the local part of an address: "jane@example.com" -> "j***@example.com".
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return Mask(email)
	}
	return email[:1] + "***" + email[at:]
}
