// Package privacylog keeps account identifiers, credentials and local paths out of log
// output.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

const redactedValue = "[REDACTED]"

type treatment int

const (
	keep treatment = iota
	fingerprint
	redact
	basename
)

var (
	bootNonce = randomNonce()

	// Identifiers that link a log line to a person are replaced by a per-run fingerprint.
	fingerprintKeys = map[string]struct{}{
		"user_id":      {},
		"owner_id":     {},
		"auth_uid":     {},
		"firebase_uid": {},
		"email":        {},
		"agreement_id": {},
	}
	sensitiveKeyParts = []string{"token", "secret", "password", "passphrase", "authorization", "api_key"}
	pathKeySuffixes   = []string{"_path", "_handle", "_dir"}
)

type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

// NewLogger builds the process logger: text or json output, sanitized.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}
	return slog.New(WrapHandler(base))
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		clean[i] = SanitizeAttr(attr)
	}
	return &SanitizingHandler{next: h.next.WithAttrs(clean)}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// SanitizeAttr rewrites one attribute, descending into groups.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		members := attr.Value.Group()
		clean := make([]slog.Attr, len(members))
		for i, member := range members {
			clean[i] = SanitizeAttr(member)
		}
		return slog.Attr{Key: attr.Key, Value: slog.GroupValue(clean...)}
	}

	switch classify(attr.Key) {
	case fingerprint:
		key := attr.Key
		if !strings.HasSuffix(strings.ToLower(key), "_fp") {
			key += "_fp"
		}
		return slog.String(key, FingerprintID(valueString(attr.Value)))
	case redact:
		return slog.String(attr.Key, redactedValue)
	case basename:
		if raw := valueString(attr.Value); raw != "" && !strings.Contains(raw, "://") {
			return slog.String(attr.Key, filepath.Base(raw))
		}
	}
	return attr
}

// FingerprintID hashes an identifier with a per-process nonce so log lines can be correlated
// within one run without exposing the value.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || trimmed == "0" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func classify(key string) treatment {
	key = strings.ToLower(strings.TrimSpace(key))
	if _, ok := fingerprintKeys[key]; ok {
		return fingerprint
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return redact
		}
	}
	for _, suffix := range pathKeySuffixes {
		if strings.HasSuffix(key, suffix) {
			return basename
		}
	}
	return keep
}

func valueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return fmt.Sprintf("%d", v.Int64())
	case slog.KindUint64:
		return fmt.Sprintf("%d", v.Uint64())
	default:
		return fmt.Sprint(v.Any())
	}
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
