package contracts

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

const (
	ErrorCategoryAPI     = "api"
	ErrorCategoryCrypto  = "crypto"
	ErrorCategoryStorage = "storage"
	ErrorCategoryNetwork = "network"
	ErrorCategoryDevice  = "device"
)

func normalizeErrorCategory(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case ErrorCategoryCrypto:
		return ErrorCategoryCrypto
	case ErrorCategoryStorage:
		return ErrorCategoryStorage
	case ErrorCategoryNetwork:
		return ErrorCategoryNetwork
	case ErrorCategoryDevice:
		return ErrorCategoryDevice
	default:
		return ErrorCategoryAPI
	}
}

func WrapCategorizedError(category string, err error) error {
	if err == nil {
		return nil
	}
	var existing *CategorizedError
	if errors.As(err, &existing) {
		return &CategorizedError{
			Category: normalizeErrorCategory(existing.Category),
			Err:      existing.Err,
		}
	}
	return &CategorizedError{
		Category: normalizeErrorCategory(category),
		Err:      err,
	}
}

// ErrorCategory classifies err for metrics; transport and filesystem failures are detected
// even when nobody wrapped them explicitly.
func ErrorCategory(err error) string {
	var classified *CategorizedError
	if errors.As(err, &classified) {
		return normalizeErrorCategory(classified.Category)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryNetwork
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return ErrorCategoryStorage
	}
	return ErrorCategoryAPI
}
