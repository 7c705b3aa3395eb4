package devapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"verisay/go-client/internal/platform/logschema"
	"verisay/go-client/internal/platform/ratelimiter"
)

const (
	DefaultAddr     = "127.0.0.1:8080"
	IdentityPrefix  = "/identitytoolkit/v1"
	headerRequestID = "X-Request-ID"
	maxUploadBytes  = 32 << 20
)

type Options struct {
	Addr           string
	APIKey         string
	TokenTTL       time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
	Now            func() time.Time
}

// Server implements the agreement backend endpoints and a small identity toolkit emulation.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	store      *Store
	apiKey     string
	tokenTTL   time.Duration
	limiter    *ratelimiter.MapLimiter
	metrics    *serverMetrics
	log        *logschema.Logger
	now        func() time.Time
}

func NewServer(store *Store, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		store:    store,
		apiKey:   strings.TrimSpace(opts.APIKey),
		tokenTTL: opts.TokenTTL,
		limiter:  ratelimiter.New(opts.RateLimitRPS, opts.RateLimitBurst, 10*time.Minute),
		metrics:  newServerMetrics(),
		log:      logschema.New("devapi", opts.Logger, nil),
		now:      opts.Now,
	}
	if s.apiKey == "" {
		s.log.Warn("startup", "", "identity api key is empty; every key is accepted")
	}

	r := mux.NewRouter()
	r.Use(s.withRequestID, s.withRateLimit, s.withMetrics)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.withOptionalBearer)
	api.HandleFunc("/agreements/save", s.handleAgreementSave).Methods(http.MethodPost)
	api.HandleFunc("/audiorecords/save", s.handleAudioSave).Methods(http.MethodPost)
	api.HandleFunc("/faceidentities/save", s.handleFacesSave).Methods(http.MethodPost)
	api.HandleFunc("/users/uid/{uid}", s.handleUserByUID).Methods(http.MethodGet)
	api.HandleFunc("/users/save", s.handleUserSave).Methods(http.MethodPost)

	idp := r.PathPrefix(IdentityPrefix).Subrouter()
	idp.Use(s.withAPIKey)
	idp.HandleFunc("/accounts:signUp", s.handleSignUp).Methods(http.MethodPost)
	idp.HandleFunc("/accounts:signInWithPassword", s.handleSignIn).Methods(http.MethodPost)
	idp.HandleFunc("/accounts:update", s.handleAccountUpdate).Methods(http.MethodPost)
	idp.HandleFunc("/accounts:lookup", s.handleAccountLookup).Methods(http.MethodPost)

	s.router = r
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()
	s.log.Info("startup", "", "dev api listening", "addr", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
