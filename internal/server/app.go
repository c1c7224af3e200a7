// Package server initializes and runs the authentication server: it wires
// config, logging, the PostgreSQL connection with migrations, the user
// service, and the HTTP endpoint, and handles graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/httpapi"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authgate/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repoManager repomanager.RepositoryManager
	httpServer  *httpapi.HTTPServer
}

func NewApp(cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	us := services.NewUserService(db, rm, logger, cfg)
	hs := httpapi.NewHTTPServer(logger, us, cfg)

	return &App{config: cfg, logger: logger, db: db, repoManager: rm, httpServer: hs}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}
	if err := app.repoManager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}

	return nil
}
