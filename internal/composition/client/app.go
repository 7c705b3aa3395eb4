// Package client wires configuration, storage and adapters into the services the CLI
// drives.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"verisay/go-client/internal/adapters/backendapi"
	"verisay/go-client/internal/adapters/identitytoolkit"
	"verisay/go-client/internal/config"
	accountusecase "verisay/go-client/internal/domains/account/usecase"
	agreementusecase "verisay/go-client/internal/domains/agreement/usecase"
	captureadapters "verisay/go-client/internal/domains/capture/adapters"
	captureusecase "verisay/go-client/internal/domains/capture/usecase"
	"verisay/go-client/internal/domains/contracts"
	profileusecase "verisay/go-client/internal/domains/profile/usecase"
	"verisay/go-client/internal/platform/logschema"
	"verisay/go-client/internal/platform/metrics"
	"verisay/go-client/internal/platform/privacylog"
	"verisay/go-client/internal/platform/ratelimiter"
	"verisay/go-client/pkg/models"
)

type Options struct {
	Stdin  io.Reader
	Stderr io.Writer
	Now    func() time.Time
	// HTTPClient replaces the default client for both remote APIs.
	HTTPClient *http.Client
}

// App holds one process worth of wired services.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Client

	Accounts   *accountusecase.Service
	Capture    *captureusecase.Service
	Agreements *agreementusecase.Orchestrator
	Feed       *agreementusecase.FeedService
	Profiles   *profileusecase.Service

	storage StorageBundle
	session *sessionHolder
}

func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := privacylog.NewLogger(opts.Stderr, privacylog.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	mc := metrics.NewClient()

	secret, err := StorageSecret(cfg.Storage.DataDir, cfg.Storage.Secret)
	if err != nil {
		return nil, err
	}
	if secret == "" {
		logger.Warn("local state is not sealed; set storage.secret to encrypt it", "data_dir", cfg.Storage.DataDir)
	}
	bundle, err := BuildStorageBundle(ctx, cfg, secret)
	if err != nil {
		return nil, err
	}

	holder := &sessionHolder{}
	if session, ok, err := bundle.Sessions.Load(); err != nil {
		_ = bundle.Close()
		return nil, fmt.Errorf("load session: %w", err)
	} else if ok {
		holder.set(session)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.API.Timeout}
	}
	limiter := ratelimiter.New(cfg.API.RateLimitRPS, cfg.API.RateLimitBurst, 0)
	backend := backendapi.NewClient(cfg.API.BaseURL,
		backendapi.WithHTTPClient(httpClient),
		backendapi.WithLimiter(limiter),
		backendapi.WithTokenSource(holder.token),
	)
	identity := identitytoolkit.NewClient(cfg.Identity.Endpoint, cfg.Identity.APIKey,
		identitytoolkit.WithHTTPClient(httpClient),
		identitytoolkit.WithLimiter(limiter),
	)

	capture := captureusecase.NewService(
		captureadapters.NewPolicyGate(cfg.Capture.CameraPolicy, cfg.Capture.MicrophonePolicy, captureadapters.NewLinePrompter(opts.Stdin, opts.Stderr)),
		newCaptureDevice(cfg.Capture),
		cfg.CaptureDir(),
		mc,
		logschema.New("capture", logger, mc),
		captureusecase.WithClock(opts.Now),
		captureusecase.WithDefaultDuration(cfg.Capture.AudioDuration),
	)

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: mc,
		Capture: capture,
		Accounts: accountusecase.NewService(identity, bundle.Documents, backend, bundle.Sessions,
			logschema.New("account", logger, mc),
			accountusecase.WithClock(opts.Now),
			accountusecase.WithSessionListener(holder.set),
		),
		Agreements: agreementusecase.NewOrchestrator(backend, backend, mc,
			logschema.New("agreement", logger, mc),
			agreementusecase.WithFeed(bundle.Feed),
			agreementusecase.WithClock(opts.Now),
		),
		Feed:     agreementusecase.NewFeedService(bundle.Documents, bundle.Feed, logschema.New("feed", logger, mc)),
		Profiles: profileusecase.NewService(bundle.Documents, identity, bundle.Blobs, capture, logschema.New("profile", logger, mc)),
		storage:  bundle,
		session:  holder,
	}
	return app, nil
}

func newCaptureDevice(cfg config.CaptureConfig) contracts.CaptureDevice {
	if cfg.Backend == config.CaptureBackendCommand {
		return captureadapters.NewCommandDevice(cfg.AudioCommand, cfg.ImageCommand, cfg.FrontDevice, cfg.RearDevice)
	}
	return captureadapters.NewFileDevice()
}

// Session guards protected commands through the account service and keeps the bearer
// token in step with the stored session.
func (a *App) Session() (models.Session, error) {
	session, err := a.Accounts.Require()
	if err != nil {
		a.session.set(models.Session{})
		return models.Session{}, err
	}
	a.session.set(session)
	return session, nil
}

// CaptureDefaults fills the configured capture settings for kind.
func (a *App) CaptureDefaults(kind models.CaptureKind) models.CaptureOptions {
	if kind == models.CaptureKindAudio {
		return models.CaptureOptions{
			AudioPreset: models.AudioPreset(a.Config.Capture.AudioPreset),
			Duration:    a.Config.Capture.AudioDuration,
		}
	}
	return models.CaptureOptions{Camera: models.CameraFront, Quality: a.Config.Capture.ImageQuality}
}

// Close flushes the metrics textfile and releases storage.
func (a *App) Close() error {
	var errs []error
	if path := a.Config.Metrics.Textfile; path != "" {
		if err := a.Metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	if err := a.storage.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// sessionHolder feeds the bearer token of the current session to outgoing requests.
type sessionHolder struct {
	mu      sync.RWMutex
	session models.Session
	ok      bool
}

func (h *sessionHolder) set(session models.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session = session
	h.ok = session.AuthUID != ""
}

func (h *sessionHolder) get() (models.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session, h.ok
}

func (h *sessionHolder) token() string {
	session, ok := h.get()
	if !ok {
		return ""
	}
	return session.IDToken
}
