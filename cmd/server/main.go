package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"trading-bot-dashboard/backend/internal/audit"
	auditrepo "trading-bot-dashboard/backend/internal/audit/repository"
	authhandler "trading-bot-dashboard/backend/internal/auth/handler"
	authservice "trading-bot-dashboard/backend/internal/auth/service"
	"trading-bot-dashboard/backend/internal/config"
	"trading-bot-dashboard/backend/internal/db"
	healthhandler "trading-bot-dashboard/backend/internal/health/handler"
	"trading-bot-dashboard/backend/internal/logging"
	"trading-bot-dashboard/backend/internal/ratelimit"
	"trading-bot-dashboard/backend/internal/security"
	"trading-bot-dashboard/backend/internal/server"
	"trading-bot-dashboard/backend/internal/server/interceptors"
	sessionrepo "trading-bot-dashboard/backend/internal/session/repository"
	sessionservice "trading-bot-dashboard/backend/internal/session/service"
	"trading-bot-dashboard/backend/internal/telemetry"
	telemetryotel "trading-bot-dashboard/backend/internal/telemetry/otel"
	"trading-bot-dashboard/backend/internal/transport"
	userrepo "trading-bot-dashboard/backend/internal/user/repository"
	userservice "trading-bot-dashboard/backend/internal/user/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty, os.Stdout)
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

type stores struct {
	users    userservice.Reader
	userRepo authservice.UserRepo
	sessions sessionrepo.Repository
	audit    auditrepo.Repository
	db       *sql.DB
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set; using in-memory stores (data is lost on exit)")
		users := userrepo.NewMemoryRepository()
		return &stores{
			users:    users,
			userRepo: users,
			sessions: sessionrepo.NewMemoryRepository(users.IsActive),
		}, nil
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	users := userrepo.NewPostgresRepository(conn)
	return &stores{
		users:    users,
		userRepo: users,
		sessions: sessionrepo.NewPostgresRepository(conn),
		audit:    auditrepo.NewPostgresRepository(conn),
		db:       conn,
	}, nil
}

func newTokenProvider(cfg *config.Config, logger zerolog.Logger) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey != "" {
		priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return nil, err
		}
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	}
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, err
		}
		secret = []byte(hex.EncodeToString(b))
		logger.Warn().Msg("JWT_SECRET not set; using an ephemeral secret (tokens do not survive restarts)")
	}
	return security.NewHMACTokenProvider(secret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.OTelServiceName, cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("otel shutdown")
		}
	}()

	metrics, err := telemetry.NewAuthMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	tokens, err := newTokenProvider(cfg, logger)
	if err != nil {
		return err
	}

	checks := map[string]healthhandler.Check{}
	if st.db != nil {
		checks["postgres"] = healthhandler.PingCheck(st.db)
	}

	var limiter ratelimit.Limiter
	var memLimiter *ratelimit.MemoryLimiter
	switch cfg.RateLimitBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer client.Close()
		rl := ratelimit.NewRedisLimiter(client, "")
		checks["redis"] = rl.Ping
		limiter = rl
	default:
		memLimiter = ratelimit.NewMemoryLimiter(cfg.RateLimitSweep())
		limiter = memLimiter
	}

	timeout := cfg.DBTimeoutDuration()
	sessions := sessionservice.NewStore(st.sessions, cfg.RefreshTTL(), timeout)
	sweeper := sessionservice.NewSweeper(sessions, cfg.SessionPurge(), metrics, logger)
	reader := userservice.NewCachedReader(st.users, cfg.UserCache())

	auditLogger := audit.NewLogger(st.audit, interceptors.ClientIPFromContext,
		telemetryotel.NewEventEmitter(providers.LoggerProvider), logger)

	authSvc := authservice.NewAuthService(authservice.Deps{
		Users:    st.userRepo,
		Reader:   reader,
		Sessions: sessions,
		Hasher:   security.NewHasher(cfg.BcryptCost, cfg.HashConcurrency),
		Tokens:   tokens,
		Gate:     ratelimit.NewGate(limiter, nil, metrics, logger),
		Audit:    auditLogger,
		Metrics:  metrics,
		Notifier: authservice.LogNotifier{Log: logger, IncludeToken: cfg.DevResetLinksInLog},
		Log:      logger,
	}, authservice.Options{
		RevokeAllOnReuse: cfg.RefreshReuseRevokesAll,
		DBTimeout:        timeout,
		ResetTokenTTL:    cfg.PasswordResetLifetime(),
	})

	tt := transport.NewTokenTransport(transport.CookieCarrier{}, transport.Options{
		Secure:     cfg.SecureCookies(),
		Domain:     cfg.CookieDomain,
		SameSite:   transport.ParseSameSite(cfg.CookieSameSite),
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	})
	var auditReader authhandler.AuditReader
	if st.audit != nil {
		auditReader = st.audit
	}
	handler := server.NewHTTPHandler(server.Deps{
		Auth:        authhandler.New(authSvc, tt, auditReader, logger),
		RequireAuth: interceptors.RequireAuth(authSvc, tt, cfg.LoginPath, logger),
		Health:      healthhandler.New(checks),
		Log:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if memLimiter != nil {
		memLimiter.Start(ctx)
		defer memLimiter.Stop()
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()
	reader.Start()
	defer reader.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("rate_limit_backend", cfg.RateLimitBackend).
			Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// Let in-flight async audit emits finish before the OTel providers shut down.
		time.Sleep(telemetry.ShutdownDrainDuration)
		logger.Info().Msg("HTTP server stopped")
		return nil
	})
	return g.Wait()
}
