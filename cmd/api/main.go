package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/cengZa/zhiyin-backend/internal/app/migrate"
	httpx "github.com/cengZa/zhiyin-backend/internal/http"
	"github.com/cengZa/zhiyin-backend/internal/lock"
	"github.com/cengZa/zhiyin-backend/internal/repository/postgres"
	"github.com/cengZa/zhiyin-backend/internal/service/match"
	"github.com/cengZa/zhiyin-backend/internal/service/team"
	"github.com/cengZa/zhiyin-backend/internal/service/user"
	"github.com/cengZa/zhiyin-backend/internal/ws"
	"github.com/cengZa/zhiyin-backend/pkg/config"
	"github.com/cengZa/zhiyin-backend/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()

	redisAddr := strings.TrimSpace(cfg.RedisAddr)

	var locker lock.Locker = lock.NewMemoryLocker()
	if redisAddr != "" {
		redisLocker, err := lock.NewRedisLocker(redisAddr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis locker unavailable, falling back to in-process locking", "error", err)
		} else {
			defer redisLocker.Close()
			locker = redisLocker
		}
	}

	var redisClient *redis.Client
	if redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer redisClient.Close()
	}

	userSvc := user.New(repo, redisClient, log, cfg)
	teamSvc := team.New(repo, repo, repo, locker, hub, log)
	matchSvc := match.New(repo, log)

	var limiter httpx.RateLimiter
	if redisAddr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(redisAddr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}
	if limiter == nil {
		limiter = httpx.NewMemoryRateLimiter()
	}

	router := httpx.NewRouter(log, userSvc, teamSvc, matchSvc, hub, limiter, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
