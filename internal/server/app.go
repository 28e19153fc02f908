// Package server initializes and runs the application: it wires the
// config, database, object store and token issuer into the services and
// starts the HTTP API with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/asavelyev/mediahub/internal/filex"
	"github.com/asavelyev/mediahub/internal/logging"
	"github.com/asavelyev/mediahub/internal/server/auth"
	"github.com/asavelyev/mediahub/internal/server/config"
	"github.com/asavelyev/mediahub/internal/server/httpapi"
	"github.com/asavelyev/mediahub/internal/server/repositories/repomanager"
	"github.com/asavelyev/mediahub/internal/server/services"
	"github.com/asavelyev/mediahub/internal/server/storage"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	sessions  *services.SessionService
	assets    *services.AssetService
	issuer    *auth.Issuer
	uploadDir string
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	db, err := repomanager.Open(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	uploadDir, err := filex.EnsureDir(c.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload dir error: %w", err)
	}

	issuer := auth.NewIssuer(
		[]byte(c.AccessTokenSecret), []byte(c.RefreshTokenSecret),
		c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration,
	)

	store := storage.NewS3Store(storage.S3Config{
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	})

	return &App{
		config:    c,
		logger:    logger,
		sessions:  services.NewSessionService(db, rm, issuer, store, logger),
		assets:    services.NewAssetService(db, rm, store, logger),
		issuer:    issuer,
		uploadDir: uploadDir,
	}, nil
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

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.sessions, app.assets,
		app.issuer, app.uploadDir, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
}
