// Package admin implements stampctl, the operator CLI: schema migrations,
// signing key rotation and listing, transparency publishing and sender
// registration.
package admin

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/humanstamp/internal/logging"
	"github.com/dmitrijs2005/humanstamp/internal/server/config"
	"github.com/dmitrijs2005/humanstamp/internal/server/metrics"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/humanstamp/internal/server/services"
	"github.com/dmitrijs2005/humanstamp/internal/server/transparency"
	"github.com/spf13/cobra"
)

// Deps are the collaborators stampctl needs. Defaults talks to Postgres.
type Deps struct {
	Out        io.Writer
	Err        io.Writer
	LoadConfig func(configFile string) *config.Config
	OpenDB     func(ctx context.Context, dsn string) (*sql.DB, error)
	Repos      repomanager.RepositoryManager
	Publishers func(ctx context.Context, cfg *config.Config) ([]transparency.Publisher, error)
}

// Defaults returns production dependencies.
func Defaults() Deps {
	return Deps{
		Out:        os.Stdout,
		Err:        os.Stderr,
		LoadConfig: config.LoadEnvConfig,
		OpenDB:     repomanager.OpenPostgres,
		Repos:      repomanager.NewPostgresRepositoryManager(),
		Publishers: transparency.FromConfig,
	}
}

// session is what a command gets after config is loaded and the database
// is open.
type session struct {
	cfg    *config.Config
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
	out    io.Writer
	deps   Deps
}

func (s *session) keyService() (*services.KeyService, error) {
	return services.NewKeyService(s.db, s.repos, s.cfg, s.logger, metrics.New())
}

type runner func(ctx context.Context, s *session, args []string) error

// NewRootCmd builds the stampctl command tree.
func NewRootCmd(d Deps) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "stampctl",
		Short:         "Operate the stamp engine: migrations, signing keys, senders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(d.Out)
	root.SetErr(d.Err)
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "JSON config file (overrides environment)")

	with := func(fn runner) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg := d.LoadConfig(configFile)
			if cfg.DatabaseDSN == "" {
				return fmt.Errorf("database DSN is not configured")
			}
			db, err := d.OpenDB(ctx, cfg.DatabaseDSN)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			return fn(ctx, &session{
				cfg:    cfg,
				db:     db,
				repos:  d.Repos,
				logger: logging.NewJSONLogger(d.Err, cfg.LogLevel),
				out:    d.Out,
				deps:   d,
			}, args)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, s *session, _ []string) error {
			if err := s.repos.RunMigrations(ctx, s.db); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			fmt.Fprintln(s.out, "migrations applied")
			return nil
		}),
	})

	root.AddCommand(newKeysCmd(with), newSendersCmd(with))
	return root
}

// Execute runs stampctl with production dependencies and returns the exit
// code.
func Execute(ctx context.Context, args []string) int {
	d := Defaults()
	root := NewRootCmd(d)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(d.Err, "error:", err)
		return 1
	}
	return 0
}
