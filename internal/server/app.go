// Package server wires configuration, storage, token service and the HTTP
// and gRPC listeners into a runnable application with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"github.com/dmitrijs2005/eventhub/internal/server/config"
	"github.com/dmitrijs2005/eventhub/internal/server/events"
	"github.com/dmitrijs2005/eventhub/internal/server/httpapi"
	"github.com/dmitrijs2005/eventhub/internal/server/oauth"
	"github.com/dmitrijs2005/eventhub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/eventhub/internal/server/services"
	"github.com/dmitrijs2005/eventhub/internal/telemetry"
	"github.com/nats-io/nats.go"

	gs "github.com/dmitrijs2005/eventhub/internal/server/grpc"
)

const serviceName = "eventhub"

type App struct {
	config      *config.Config
	logger      logging.Logger
	repos       repomanager.RepositoryManager
	tokens      *auth.TokenService
	publisher   events.Publisher
	userService *services.UserService
	tracing     func(context.Context) error
	closers     []func()
}

// NewApp builds every dependency. Logs go to w.
func NewApp(ctx context.Context, c *config.Config, w io.Writer) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(c.LogFormat, w)
	app := &App{config: c, logger: logger}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     []byte(c.SecretKey),
		AccessTTL:  c.AccessTokenValidityDuration,
		RefreshTTL: c.RefreshTokenValidityDuration,
		Issuer:     c.TokenIssuer,
	})
	if err != nil {
		return nil, err
	}
	app.tokens = tokens

	if err := app.initRepositories(ctx); err != nil {
		app.Close()
		return nil, err
	}

	if err := app.initPublisher(ctx); err != nil {
		app.Close()
		return nil, err
	}

	us, err := services.NewUserService(app.repos, tokens, app.publisher, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.userService = us

	shutdown, err := telemetry.Init(ctx, serviceName, c.OTLPEndpoint)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.tracing = shutdown

	return app, nil
}

func (app *App) initRepositories(ctx context.Context) error {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "DATABASE_URL is not set, users are kept in memory")
		app.repos = repomanager.NewInMemoryRepositoryManager()
		return nil
	}

	m, err := repomanager.NewPostgresRepositoryManager(app.config.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.repos = m
	app.closers = append(app.closers, func() { _ = m.Close() })

	if err := m.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

func (app *App) initPublisher(ctx context.Context) error {
	if app.config.NatsURL == "" {
		app.publisher = events.Nop{}
		return nil
	}

	p, err := events.NewNATSPublisher(app.config.NatsURL,
		nats.Name(serviceName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	app.publisher = p
	app.closers = append(app.closers, p.Close)
	app.logger.Info(ctx, "Publishing session events", "nats", app.config.NatsURL)
	return nil
}

// Close releases storage and broker connections.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	app.closers = nil
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

	opts := httpapi.Options{
		Address:           app.config.HTTPAddr,
		CORSOrigins:       app.config.CORSOrigins,
		RateLimitRequests: app.config.RateLimitRequests,
		RateLimitWindow:   app.config.RateLimitWindow,
	}
	if app.config.OAuthEnabled() {
		opts.Google = oauth.NewGoogleProvider(app.config.GoogleClientID, app.config.GoogleClientSecret, app.config.GoogleRedirectURL)
	}

	s, err := httpapi.NewServer(opts, app.userService, app.tokens, app.logger)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.userService, app.tokens)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled, a signal arrives or a listener fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.GRPCAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if app.tracing != nil {
		if err := app.tracing(shutdownCtx); err != nil {
			app.logger.Warn(shutdownCtx, "tracer shutdown", "error", err)
		}
	}
	app.Close()

	app.logger.Info(shutdownCtx, "App stopped")
}
