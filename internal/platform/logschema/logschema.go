package logschema

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// ErrorRecorder counts errors by category; *metrics.Client satisfies it.
type ErrorRecorder interface {
	RecordError(category string)
}

// Logger stamps every record with component, operation and correlation_id.
type Logger struct {
	component string
	logger    *slog.Logger
	errors    ErrorRecorder
}

func New(component string, logger *slog.Logger, errors ErrorRecorder) *Logger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Logger{component: strings.TrimSpace(component), logger: logger, errors: errors}
}

func (l *Logger) Info(operation, correlationID, message string, attrs ...any) {
	l.logger.Info(message, append(l.base(operation, correlationID), attrs...)...)
}

func (l *Logger) Warn(operation, correlationID, message string, attrs ...any) {
	l.logger.Warn(message, append(l.base(operation, correlationID), attrs...)...)
}

// Error logs err under category and bumps the error counter.
func (l *Logger) Error(category string, err error, operation, correlationID string, attrs ...any) {
	if err == nil {
		return
	}
	if l.errors != nil {
		l.errors.RecordError(category)
	}
	base := []any{
		"component", l.component,
		"operation", strings.TrimSpace(operation),
		"category", strings.TrimSpace(category),
		"correlation_id", normalizeCorrelationID(correlationID),
		"error", err.Error(),
	}
	l.logger.Error("flow error", append(base, attrs...)...)
}

func (l *Logger) base(operation, correlationID string) []any {
	return []any{
		"component", l.component,
		"operation", strings.TrimSpace(operation),
		"correlation_id", normalizeCorrelationID(correlationID),
	}
}

// AgreementCorrelationID joins owner and agreement ids; either may be zero.
func AgreementCorrelationID(ownerID, agreementID int64) string {
	switch {
	case ownerID != 0 && agreementID != 0:
		return strconv.FormatInt(ownerID, 10) + ":" + strconv.FormatInt(agreementID, 10)
	case agreementID != 0:
		return strconv.FormatInt(agreementID, 10)
	case ownerID != 0:
		return strconv.FormatInt(ownerID, 10)
	default:
		return "n/a"
	}
}

func normalizeCorrelationID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "n/a"
	}
	return id
}
