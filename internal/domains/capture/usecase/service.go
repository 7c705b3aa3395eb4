package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	capturepolicy "verisay/go-client/internal/domains/capture/policy"
	"verisay/go-client/internal/domains/contracts"
	"verisay/go-client/internal/platform/logschema"
	"verisay/go-client/pkg/models"
)

const componentName = "capture"

// Metrics is the subset of the metrics client the capture flow reports to.
type Metrics interface {
	RecordCapture(kind, outcome string)
}

type Service struct {
	gate            contracts.PermissionGate
	device          contracts.CaptureDevice
	dir             string
	defaultDuration time.Duration
	metrics         Metrics
	log             *logschema.Logger
	now             func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithDefaultDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultDuration = d
		}
	}
}

func NewService(gate contracts.PermissionGate, device contracts.CaptureDevice, dir string, metrics Metrics, log *logschema.Logger, opts ...Option) *Service {
	s := &Service{
		gate:            gate,
		device:          device,
		dir:             dir,
		defaultDuration: 30 * time.Second,
		metrics:         metrics,
		log:             log,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logschema.New(componentName, nil, nil)
	}
	return s
}

// Capture asks for permission, records one resource and returns its local handle.
// A denial or cancellation leaves no file behind.
func (s *Service) Capture(ctx context.Context, kind models.CaptureKind, opts models.CaptureOptions) (models.CaptureResult, error) {
	op := "capture." + string(kind)
	opts, err := capturepolicy.NormalizeOptions(kind, opts, s.defaultDuration)
	if err != nil {
		return models.CaptureResult{}, contracts.NewFlowError(contracts.KindGeneric, op, err)
	}

	granted, err := s.gate.RequestPermission(ctx, kind)
	if err != nil {
		s.record(kind, "error")
		s.log.Error(contracts.ErrorCategory(err), err, op, "", "stage", "permission")
		return models.CaptureResult{}, contracts.NewFlowError(contracts.KindGeneric, op, err)
	}
	if !granted {
		s.record(kind, "denied")
		s.log.Warn(op, "", "capture permission denied")
		return models.CaptureResult{}, contracts.NewFlowError(contracts.KindPermissionDenied, op, nil)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return models.CaptureResult{}, contracts.NewFlowError(contracts.KindGeneric, op, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err))
	}
	name, err := newCaptureName()
	if err != nil {
		return models.CaptureResult{}, contracts.NewFlowError(contracts.KindGeneric, op, err)
	}
	finalPath := filepath.Join(s.dir, name+extensionFor(kind))
	rawPath := finalPath
	if kind == models.CaptureKindImage {
		rawPath = filepath.Join(s.dir, name+".raw")
	}

	if err := s.device.Capture(ctx, kind, opts, rawPath); err != nil {
		_ = os.Remove(rawPath)
		if errors.Is(err, contracts.ErrCaptureCancelled) || errors.Is(err, context.Canceled) {
			s.record(kind, "cancelled")
			s.log.Info(op, "", "capture cancelled")
			return models.CaptureResult{}, contracts.NewFlowError(contracts.KindCaptureCancelled, op, nil)
		}
		s.record(kind, "error")
		s.log.Error(contracts.ErrorCategoryDevice, err, op, "")
		return models.CaptureResult{}, contracts.NewFlowError(contracts.KindGeneric, op, contracts.WrapCategorizedError(contracts.ErrorCategoryDevice, err))
	}

	if err := s.finalize(kind, opts, rawPath, finalPath); err != nil {
		_ = os.Remove(rawPath)
		_ = os.Remove(finalPath)
		s.record(kind, "error")
		s.log.Error(contracts.ErrorCategoryDevice, err, op, "", "stage", "normalize")
		return models.CaptureResult{}, contracts.NewFlowError(contracts.KindGeneric, op, err)
	}

	s.record(kind, "success")
	s.log.Info(op, "", "capture stored", "capture_path", finalPath)
	return models.CaptureResult{
		Kind:       kind,
		Handle:     finalPath,
		CapturedAt: s.now().UTC(),
	}, nil
}

// Discard removes captured files once their flow has ended. Handles outside the capture
// directory are left alone.
func (s *Service) Discard(results ...*models.CaptureResult) {
	for _, r := range results {
		if r == nil || r.Handle == "" {
			continue
		}
		rel, err := filepath.Rel(s.dir, r.Handle)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			continue
		}
		if err := os.Remove(r.Handle); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("capture.discard", "", "capture cleanup failed", "capture_path", r.Handle, "error", err.Error())
			continue
		}
		r.Handle = ""
	}
}

// NormalizeImageFile re-encodes a local image file as JPEG through the capture pipeline.
func (s *Service) NormalizeImageFile(path string, quality float64) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	return capturepolicy.NormalizeImage(raw, quality)
}

func (s *Service) finalize(kind models.CaptureKind, opts models.CaptureOptions, rawPath, finalPath string) error {
	raw, err := os.ReadFile(rawPath)
	if err != nil {
		return fmt.Errorf("read capture output: %w", err)
	}
	switch kind {
	case models.CaptureKindAudio:
		return capturepolicy.ValidateWAV(raw)
	case models.CaptureKindImage:
		jpegBytes, err := capturepolicy.NormalizeImage(raw, opts.Quality)
		if err != nil {
			return err
		}
		if err := os.WriteFile(finalPath, jpegBytes, 0o600); err != nil {
			return fmt.Errorf("write capture: %w", err)
		}
		return os.Remove(rawPath)
	default:
		return fmt.Errorf("unknown capture kind %q", kind)
	}
}

func (s *Service) record(kind models.CaptureKind, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordCapture(string(kind), outcome)
	}
}

func newCaptureName() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "cap_" + base58.Encode(buf), nil
}

func extensionFor(kind models.CaptureKind) string {
	if kind == models.CaptureKindAudio {
		return ".wav"
	}
	return ".jpg"
}
