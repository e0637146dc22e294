// Package server wires the reference upload server: artifact storage, chunk
// sessions, the gin upload API with prometheus metrics and the gRPC health
// service.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/logging"
	"github.com/dmitrijs2005/gophupload/internal/server/config"
	gs "github.com/dmitrijs2005/gophupload/internal/server/grpc"
	"github.com/dmitrijs2005/gophupload/internal/server/httpapi"
	"github.com/dmitrijs2005/gophupload/internal/server/sessions"
	"github.com/dmitrijs2005/gophupload/internal/server/storage"
	"github.com/dmitrijs2005/gophupload/internal/server/uploads"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	service *uploads.Service
	router  *gin.Engine
	health  *gs.HealthServer
}

// Seam for tests.
var openPostgres = sessions.OpenPostgres

func newStore(ctx context.Context, c *config.Config) (storage.Store, error) {
	switch c.Storage {
	case config.StorageDisk:
		return storage.NewDiskStore(c.StorageDir)
	case config.StorageS3:
		return storage.NewS3Store(ctx, storage.S3Config{
			User:         c.S3RootUser,
			Password:     c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
	default:
		return storage.NewMemoryStore(), nil
	}
}

func NewApp(ctx context.Context, c *config.Config, logOut io.Writer) (*App, error) {
	logger := logging.New(logOut, c.LogLevel, c.LogFormat)

	store, err := newStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	app := &App{config: c, logger: logger}

	var repo sessions.Repository = sessions.NewMemoryRepository()
	if c.DatabaseDSN != "" {
		db, err := openPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db
		repo = sessions.NewPostgresRepository(db)
	}

	app.service = uploads.NewService(store, repo, c.MaxUploadBytes, c.SessionTTL, logger.With("module", "uploads"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if c.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := httpapi.NewHandlers(app.service, httpapi.NewMetrics(reg), logger)
	app.router = httpapi.NewRouter(handlers, []byte(c.SecretKey), reg)

	if c.GRPCAddr != "" {
		app.health = gs.NewHealthServer(c.GRPCAddr, logger)
	}

	logger.Info(ctx, "App initialized", "storage", c.Storage, "postgres", app.db != nil)
	return app, nil
}

// Handler exposes the HTTP router.
func (app *App) Handler() http.Handler {
	return app.router
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) runHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// purgeLoop drops idle chunk sessions every quarter of the session TTL.
func (app *App) purgeLoop(ctx context.Context) error {
	ticker := time.NewTicker(app.config.SessionTTL / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := app.service.PurgeExpired(ctx)
			if err != nil {
				app.logger.Warn(ctx, "session purge failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired sessions purged", "count", n)
			}
		}
	}
}

// Run serves until a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.runHTTP(gctx) })
	g.Go(func() error { return app.purgeLoop(gctx) })
	if app.health != nil {
		g.Go(func() error { return app.health.Run(gctx) })
	}

	err := g.Wait()
	if app.db != nil {
		if cerr := app.db.Close(); cerr != nil {
			app.logger.Warn(ctx, "db close failed", "error", cerr)
		}
	}
	if err != nil {
		app.logger.Error(ctx, "server stopped with error", "error", err)
		return err
	}
	app.logger.Info(ctx, "App stopped")
	return nil
}
