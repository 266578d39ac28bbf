package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blagoySimandov/careerpilot/internal/account"
	"github.com/blagoySimandov/careerpilot/internal/ai"
	"github.com/blagoySimandov/careerpilot/internal/api"
	"github.com/blagoySimandov/careerpilot/internal/auth"
	"github.com/blagoySimandov/careerpilot/internal/billing"
	"github.com/blagoySimandov/careerpilot/internal/config"
	"github.com/blagoySimandov/careerpilot/internal/db"
	"github.com/blagoySimandov/careerpilot/internal/generation"
	"github.com/blagoySimandov/careerpilot/internal/logger"
	"github.com/blagoySimandov/careerpilot/internal/metrics"
	"github.com/blagoySimandov/careerpilot/internal/ratelimit"
	"github.com/blagoySimandov/careerpilot/internal/scheduler"
	"github.com/blagoySimandov/careerpilot/migrations"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New(nil)

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	ledger := account.NewLedger(store, cfg.Ledger)

	rdb := newRedis(ctx, cfg.RedisURL)
	if rdb != nil {
		defer rdb.Close()
	}

	var deduper billing.EventDeduper = billing.NewMemoryDeduper(cfg.Billing.DedupTTL)
	var limiter *ratelimit.Limiter
	if rdb != nil {
		deduper = billing.NewRedisDeduper(rdb, cfg.Billing.DedupTTL)
		limiter = ratelimit.NewLimiter(rdb, cfg.RateLimitPerMin, time.Minute)
	}

	reconciler := billing.NewReconciler(
		billing.NewStripeProvider(cfg.Billing),
		billing.NewStripeVerifier(cfg.Billing),
		ledger,
		cfg.Billing,
		billing.WithDeduper(deduper),
		billing.WithMetrics(m),
	)

	gemini, err := ai.NewGeminiClient(ctx, cfg.AI, ai.WithTokenTracker(ai.NewTokenTracker(m)))
	if err != nil {
		return err
	}
	generator := generation.NewService(ledger, gemini, cfg.AI, m)

	jwtVerifier, err := auth.NewJWTVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	defer jwtVerifier.Close()

	router := api.SetupRoutes(api.Dependencies{
		Accounts:       api.NewAccountHandler(ledger),
		Billing:        api.NewBillingHandler(reconciler),
		Generation:     api.NewGenerationHandler(generator),
		Auth:           auth.NewMiddleware(jwtVerifier),
		Limiter:        limiter,
		Metrics:        m,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.AI.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sched := scheduler.New(ledger, cfg.UsageResetSchedule, m)
	if err := sched.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.ServerAddr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		sched.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newStore uses Postgres when DATABASE_URL is set and process memory otherwise.
func newStore(ctx context.Context, cfg *config.Config) (account.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, accounts are kept in memory")
		return account.NewMemoryStore(), func() {}, nil
	}

	bunDB := db.NewBunPostgresClient(cfg.DatabaseURL, db.PoolConfig{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	closeDB := func() { closeBun(bunDB) }

	if err := db.Ping(ctx, bunDB, cfg.Ledger.StoreTimeout); err != nil {
		closeDB()
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := migrations.Up(ctx, bunDB); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	return account.NewBunStore(bunDB), closeDB, nil
}

func closeBun(bunDB *bun.DB) {
	if err := bunDB.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
}

// newRedis returns nil when Redis is not configured or unreachable; callers
// fall back to in-process deduplication and no rate limiting.
func newRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		log.Info().Msg("REDIS_URL not set, rate limiting disabled")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid REDIS_URL, rate limiting disabled")
		return nil
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, rate limiting disabled")
		_ = rdb.Close()
		return nil
	}
	return rdb
}
