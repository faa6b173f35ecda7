package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tabmarks/tabmarks/internal/config"
	"github.com/tabmarks/tabmarks/internal/feed"
	"github.com/tabmarks/tabmarks/internal/httpserver"
	"github.com/tabmarks/tabmarks/internal/httpserver/deps"
	"github.com/tabmarks/tabmarks/internal/logger"
	"github.com/tabmarks/tabmarks/internal/reconciler"
	"github.com/tabmarks/tabmarks/internal/redis"
	"github.com/tabmarks/tabmarks/internal/session"
	redisstore "github.com/tabmarks/tabmarks/internal/store/redis"
	"github.com/tabmarks/tabmarks/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	views       *reconciler.Manager
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Initialize Redis early - fail fast if unavailable
	redisClient, err := redis.New(context.Background(), redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		DialTimeout:    cfg.RedisDialTimeout,
		ReadTimeout:    cfg.RedisReadTimeout,
		WriteTimeout:   cfg.RedisWriteTimeout,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}

	store := redisstore.NewStore(redisClient)
	changeFeed := feed.New(redisClient, loggerClient)

	views := reconciler.NewManager(reconciler.ManagerOptions{
		Store: store,
		Subscribe: func(ctx context.Context, owner string) (reconciler.Subscription, error) {
			return changeFeed.Subscribe(ctx, owner)
		},
		Clock:         quartz.NewReal(),
		FallbackDelay: cfg.FallbackDelay,
		IdleTTL:       cfg.ViewIdleTTL,
		SweepInterval: cfg.SweepInterval,
		Logger:        loggerClient,
	})

	// OIDC discovery hits the issuer; fail fast on misconfiguration.
	discoverCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sessions, err := session.NewManager(discoverCtx, session.Options{
		Issuer:       cfg.OIDCIssuer,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Scopes:       cfg.OIDCScopes,
		CookieName:   cfg.CookieName,
		Secure:       cfg.SecureCookies,
		TTL:          cfg.SessionTTL,
		Store:        store,
		Logger:       loggerClient,
	})
	if err != nil {
		loggerClient.Errorf("Failed to set up identity provider: %v", err)
		os.Exit(1)
	}

	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		Sessions:       sessions,
		Views:          views,
		RedisClient:    redisClient,
		AllowedOrigins: cfg.AllowedOrigins,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		views:       views,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting tabmarks v%s on %s", version.Version, a.cfg.ListenAddr)
	a.logger.Infof("tabmarks %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the idle-view sweep
	a.views.Start(ctx)
	a.logger.Info("bookmark view sweep started",
		logger.Duration("interval", a.cfg.SweepInterval),
		logger.Duration("idle_ttl", a.cfg.ViewIdleTTL))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	// Close all views first: cancels fallback timers and feed
	// subscriptions before the store goes away.
	a.views.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ tabmarks stopped cleanly")
	return nil
}
