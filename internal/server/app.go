// Package server wires the authentication services from configuration and
// runs the HTTP server, the gRPC server and the expiry sweeper until a
// shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/httpapi"
	"github.com/dmitrijs2005/authcore/internal/server/metrics"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/notify"
	"github.com/dmitrijs2005/authcore/internal/server/ratelimit"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/dmitrijs2005/authcore/internal/server/storage"
	"github.com/dmitrijs2005/authcore/internal/server/sweeper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/authcore/internal/server/grpc"
)

const readHeaderTimeout = 5 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	codec    *auth.Codec
	auth     *services.AuthService
	sweeper  *sweeper.Sweeper
	registry *prometheus.Registry
	closers  []func() error
}

// NewLogger builds the process logger selected by the config.
func NewLogger(c *config.Config) (logging.Logger, error) {
	return logging.New(os.Stdout, logging.Options{
		Backend:     c.LogBackend,
		Format:      c.LogFormat,
		Level:       c.LogLevel,
		Development: c.IsDevelopment(),
	})
}

// OpenStore returns the repository manager for the configured driver. For
// postgres it opens the pool and applies migrations; the memory driver
// returns a nil *sql.DB.
func OpenStore(ctx context.Context, c *config.Config, logger logging.Logger) (*sql.DB, repomanager.RepositoryManager, error) {
	switch c.StoreDriver {
	case config.DriverMemory:
		logger.Warn(ctx, "using in-memory store, data is lost on restart")
		return nil, repomanager.NewMemoryRepositoryManager(nil), nil
	case config.DriverPostgres:
		db, err := storage.Open(ctx, storage.PoolConfig{
			DSN:             c.DatabaseDSN,
			MaxOpenConns:    c.DBMaxOpenConns,
			MaxIdleConns:    c.DBMaxIdleConns,
			ConnMaxLifetime: c.DBConnMaxLifetime,
			PingTimeout:     c.StoreTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		rm := repomanager.NewPostgresRepositoryManager(dbx.WithTimeout(c.StoreTimeout), dbx.WithLogger(logger))
		if err := rm.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return db, rm, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
}

// NewServices builds the passcode and session managers over rm.
func NewServices(db *sql.DB, rm repomanager.RepositoryManager, c *config.Config, logger logging.Logger) (*services.OTPService, *services.SessionService) {
	return services.NewOTPService(db, rm, c, logger), services.NewSessionService(db, rm, c, logger)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := NewLogger(c)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app := &App{config: c, logger: logger, registry: prometheus.NewRegistry()}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(app.registry)

	db, rm, err := OpenStore(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	if db != nil {
		app.closers = append(app.closers, db.Close)
	}

	hasher, err := cryptox.NewHasher(c.BcryptCost)
	if err != nil {
		app.Close()
		return nil, err
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if len(c.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(c.KafkaBrokers, c.KafkaOTPTopic)
		app.closers = append(app.closers, kn.Close)
		notifier = kn
	}

	var limiter ratelimit.Limiter = ratelimit.Nop{}
	if c.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(ctx, c.RedisURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		limiter = ratelimit.NewRedisLimiter(client, c.RateLimitMax, c.RateLimitWindow)
	}

	app.codec = auth.NewCodec([]byte(c.SecretKey), c.TokenTTL, auth.WithIssuer(c.TokenIssuer))
	otps, sessions := NewServices(db, rm, c, logger)
	app.auth = services.NewAuthService(db, rm, c, services.AuthDeps{
		Codec:    app.codec,
		OTPs:     otps,
		Sessions: sessions,
		Hasher:   hasher,
		Notifier: notifier,
		Limiter:  limiter,
		Metrics:  m,
		Logger:   logger,
	})
	app.sweeper = sweeper.New(otps, sessions, c.SweepInterval, m, logger)

	return app, nil
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

func (app *App) ping() func(ctx context.Context) error {
	if app.db == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return storage.Ping(ctx, app.db, app.config.StoreTimeout)
	}
}

// Run blocks until a signal arrives or one of the servers fails, then drains
// and releases every resource.
func (app *App) Run(ctx context.Context) error {
	defer app.Close()

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "environment", app.config.Environment, "store", app.config.StoreDriver)

	app.initSignalHandler(cancelFunc)

	api := httpapi.New(app.auth, app.codec, app.logger, httpapi.Options{
		AllowedOrigins:     app.config.AllowedOrigins,
		RequireLiveSession: app.config.RequireLiveSession,
		Ping:               app.ping(),
		Gatherer:           app.registry,
	})
	httpSrv := &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	grpcSrv := gs.NewGRPCServer(app.config.GRPCAddr, app.codec, app.logger,
		gs.WithHealthCheck(app.ping(), 0),
		gs.WithChannelz(models.RoleAdmin),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info(gctx, "Starting HTTP server", "address", app.config.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info(gctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := grpcSrv.Run(gctx); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return app.sweeper.Run(gctx)
	})

	err := g.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return err
}

// Close releases the pool, the Kafka writer and the Redis client, in
// reverse order of acquisition.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
	if z, ok := app.logger.(*logging.ZapLogger); ok {
		_ = z.Sync()
	}
}
