// Package server wires configuration, storage, services and the HTTP API
// into a runnable application with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/logging"
	"github.com/dmitrijs2005/humanstamp/internal/server/captcha"
	"github.com/dmitrijs2005/humanstamp/internal/server/config"
	"github.com/dmitrijs2005/humanstamp/internal/server/httpapi"
	"github.com/dmitrijs2005/humanstamp/internal/server/metrics"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/humanstamp/internal/server/services"
)

const captchaTimeout = 5 * time.Second

// Services bundles the business services over one database handle.
type Services struct {
	Keys     *services.KeyService
	Stamps   *services.StampService
	Verifier *services.VerificationService
}

// NewServices builds all services. It fails only on configuration errors.
func NewServices(db *sql.DB, rm repomanager.RepositoryManager, c *config.Config, logger logging.Logger, mt *metrics.Metrics) (*Services, error) {
	keys, err := services.NewKeyService(db, rm, c, logger, mt)
	if err != nil {
		return nil, err
	}
	return &Services{
		Keys:     keys,
		Stamps:   services.NewStampService(db, rm, keys, newCaptcha(c), c, logger, mt),
		Verifier: services.NewVerificationService(db, rm, keys, logger, mt),
	}, nil
}

func newCaptcha(c *config.Config) captcha.Verifier {
	if c.CaptchaBypass {
		return captcha.Bypass{}
	}
	return captcha.NewTurnstile(c.CaptchaSecret, c.CaptchaVerifyURL, captchaTimeout)
}

// NewLogger returns the JSON logger used by the server and the admin CLI.
func NewLogger(w io.Writer, c *config.Config) logging.Logger {
	return logging.NewJSONLogger(w, c.LogLevel)
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	metrics  *metrics.Metrics
	services *Services
}

// NewApp validates c, connects to the database, applies migrations and
// builds the services. A configuration error is returned before any
// connection is attempted.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := NewLogger(os.Stdout, c)
	if c.CaptchaBypass {
		logger.Warn(ctx, "CAPTCHA bypass is enabled; do not use in production")
	}

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	mt := metrics.New()
	svc, err := NewServices(db, rm, c, logger, mt)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &App{config: c, logger: logger, db: db, metrics: mt, services: svc}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.HTTPAddr, app.logger,
		app.services.Stamps, app.services.Verifier, app.services.Keys,
		app.metrics, app.config.JWTSecret)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a termination signal arrives or the server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.db.Close()

	app.logger.Info(ctx, "Starting app...")

	key, err := app.services.Keys.EnsureActiveKey(ctx)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	app.logger.Info(ctx, "active signing key", "key_id", key.ID)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.logger.Info(ctx, "App stopped")
	return nil
}
