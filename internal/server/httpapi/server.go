// Package httpapi exposes the stamp engine over HTTP: authenticated
// issuance, listing and revocation, public verification and the public key
// listing.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/logging"
	"github.com/dmitrijs2005/humanstamp/internal/server/metrics"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
	"github.com/dmitrijs2005/humanstamp/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

// StampService is the issuer side used by the API.
type StampService interface {
	Issue(ctx context.Context, req services.IssueRequest) (*services.IssueResult, error)
	Revoke(ctx context.Context, userID, stampID string) error
	List(ctx context.Context, userID string, limit, offset int) ([]services.StampSummary, error)
}

// Verifier classifies stamps for recipients.
type Verifier interface {
	Validate(ctx context.Context, stampID string, obs services.Observer) (*services.ValidationResult, error)
}

// KeyLister lists public signing keys.
type KeyLister interface {
	PublicKeys(ctx context.Context) ([]models.PublicKeyInfo, error)
}

type HTTPServer struct {
	address   string
	stamps    StampService
	verifier  Verifier
	keys      KeyLister
	metrics   *metrics.Metrics
	logger    logging.Logger
	jwtSecret []byte
}

func NewHTTPServer(a string, l logging.Logger, ss StampService, vs Verifier, kl KeyLister, mt *metrics.Metrics, secretKey string) *HTTPServer {
	return &HTTPServer{
		address:   a,
		stamps:    ss,
		verifier:  vs,
		keys:      kl,
		metrics:   mt,
		logger:    l.With("module", "http_server"),
		jwtSecret: []byte(secretKey),
	}
}

// Router builds the route tree.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Get("/verify/{id}", s.verify)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/verify/{id}", s.verify)
		r.Get("/keys", s.listKeys)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/stamps", s.issue)
			r.Get("/stamps", s.listStamps)
			r.Post("/stamps/{id}/revoke", s.revoke)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
