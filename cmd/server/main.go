package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"seshlock/internal/config"
	"seshlock/internal/db"
	"seshlock/internal/db/migrate"
	identityhandler "seshlock/internal/identity/handler"
	"seshlock/internal/identity/limiter"
	identityservice "seshlock/internal/identity/service"
	"seshlock/internal/logging"
	"seshlock/internal/security"
	"seshlock/internal/server"
	sessionrepo "seshlock/internal/session/repository"
	sessionservice "seshlock/internal/session/service"
	"seshlock/internal/telemetry"
	telemetryotel "seshlock/internal/telemetry/otel"
	"seshlock/internal/telemetry/producer"
	userrepo "seshlock/internal/user/repository"
	userservice "seshlock/internal/user/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(context.Background(), "server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.SlogLogger) error {
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()

	dialect, err := db.DialectFor(cfg.DBDriver)
	if err != nil {
		return err
	}
	conn, err := openDatabase(cfg, dialect)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer conn.Close()
	if cfg.AutoMigrate {
		if err := migrate.Up(conn, dialect); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info(ctx, "migrations applied", "driver", dialect.Name())
	}

	emitter, events, err := newEventEmitter(cfg, providers)
	if err != nil {
		return fmt.Errorf("session events: %w", err)
	}
	if events != nil {
		defer events.Close()
	}

	policy, err := sessionservice.ParseRotationPolicy(cfg.RotationPolicy)
	if err != nil {
		return err
	}
	tokens := sessionrepo.NewSQLRepository(conn, dialect)
	sessionCfg := sessionservice.Config{
		AccessTTL:      cfg.AccessTTL(),
		RefreshTTL:     cfg.RefreshTTL(),
		RotationPolicy: policy,
	}
	engine, err := sessionservice.NewEngine(tokens, sessionCfg,
		sessionservice.WithEmitter(emitter),
		sessionservice.WithLogger(logger.With("component", "session")),
		sessionservice.WithTracer(providers.Tracer()),
		sessionservice.WithMeter(providers.Meter()),
	)
	if err != nil {
		return err
	}
	users := userservice.NewService(
		userrepo.NewSQLRepository(conn, dialect),
		security.NewHasher(cfg.BcryptCost),
		engine,
		logger.With("component", "user"),
	)

	gwOpts := []identityservice.Option{identityservice.WithLogger(logger.With("component", "gateway"))}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		lim := limiter.New(rdb, limiter.Config{MaxFailures: cfg.LoginMaxFailures, Window: cfg.LoginWindow()})
		if err := lim.Ping(ctx); err != nil {
			logger.Warn(ctx, "redis unreachable; logins are not throttled until it recovers", "addr", cfg.RedisAddr, "error", err)
		}
		gwOpts = append(gwOpts, identityservice.WithLimiter(lim))
	}
	gateway := identityservice.NewGateway(tokens, engine, users, gwOpts...)

	grpcServer := server.NewGRPCServer(server.Deps{
		Gateway:      gateway,
		HealthPinger: tokens,
		Logger:       logger.With("component", "grpc"),
	})
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info(ctx, "gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           identityhandler.NewHTTPHandler(gateway, tokens, logger.With("component", "http")).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info(ctx, "HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http serve: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "http shutdown", "error", err)
		}
	}
	grpcServer.GracefulStop()

	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "telemetry shutdown", "error", err)
	}
	logger.Info(context.Background(), "server stopped")
	return serveErr
}

func openDatabase(cfg *config.Config, d db.Dialect) (*sql.DB, error) {
	if d == db.SQLite {
		return db.OpenSQLite(cfg.DatabaseLocation())
	}
	return db.Open(cfg.DatabaseLocation())
}

// newEventEmitter returns the Kafka producer when brokers are configured, otherwise
// an emitter writing OTel log records and a nil producer.
func newEventEmitter(cfg *config.Config, providers *telemetryotel.Providers) (telemetry.EventEmitter, producer.Producer, error) {
	kafka, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SessionEventsTopic)
	if err != nil {
		return nil, nil, err
	}
	if kafka == nil {
		return telemetryotel.NewEventEmitter(providers.LoggerProvider), nil, nil
	}
	return kafka, kafka, nil
}
