package adapters

import (
	"context"
	"fmt"
	"io"
	"os"

	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/pkg/models"
)

// FileDevice imports an existing media file named by CaptureOptions.Source.
type FileDevice struct{}

func NewFileDevice() *FileDevice {
	return &FileDevice{}
}

func (d *FileDevice) Capture(ctx context.Context, kind models.CaptureKind, opts models.CaptureOptions, outputPath string) error {
	if opts.Source == "" {
		return contracts.ErrCaptureCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(models.LocalPath(opts.Source))
	if err != nil {
		return fmt.Errorf("open %s source: %w", kind, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(outputPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create capture output: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("copy %s source: %w", kind, err)
	}
	return dst.Close()
}
