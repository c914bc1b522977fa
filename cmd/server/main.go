package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"companion-api/internal/api/handlers"
	"companion-api/internal/api/middleware"
	"companion-api/internal/api/routes"
	"companion-api/internal/config"
	"companion-api/internal/repository"
	"companion-api/internal/services"
	"companion-api/internal/websocket"
	"companion-api/pkg/cache"
	"companion-api/pkg/cleanup"
	"companion-api/pkg/database"
	"companion-api/pkg/jwt"
	"companion-api/pkg/ratelimit"
	"companion-api/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	setupLogger(cfg.GinMode)
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer database.Disconnect(db.Client())

	redisClient := redis.NewClient(ctx, cfg.Redis)
	defer redisClient.Close()
	rdb := redisClient.GetClient()

	// Limiter
	store := ratelimit.NewStore(
		ratelimit.WithExpiryGrace(cfg.RateLimit.ExpiryGrace),
		ratelimit.WithSweepInterval(cfg.RateLimit.SweepInterval),
	)

	var stats interface {
		ratelimit.Recorder
		ratelimit.StatsReader
	}
	if cfg.RateLimit.StatsBackend == "redis" {
		stats = ratelimit.NewRedisRecorder(rdb)
	} else {
		stats = ratelimit.NewMemoryRecorder()
	}
	go cleanup.NewJanitor(store, cfg.RateLimit.SweepInterval).Start(ctx)

	prom := ratelimit.NewPrometheusRecorder("companion", store)
	gate := middleware.NewGate(store, middleware.WithRecorder(ratelimit.MultiRecorder{stats, prom}))

	// Domain
	tokens := jwt.NewJWTUtil(cfg.JWT.Secret, cfg.JWT.Expiry)
	signer := jwt.NewJWTUtil(cfg.Session.Secret, cfg.Session.MaxAge)
	hub := websocket.NewHub(websocket.WithAllowedOrigins(cfg.AllowedOrigins))
	defer hub.Stop()

	userRepo := repository.NewUserRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)

	redisCache := cache.NewRedisCache(rdb, cache.DefaultCacheConfig())
	quoteService := services.NewQuoteService(quoteRepo, hub)
	quoteService.SetCache(redisCache)
	userService := services.NewUserService(userRepo, tokens)
	userService.SetCache(redisCache)

	h := &routes.Handlers{
		Quotes:    handlers.NewQuoteHandler(quoteService),
		Points:    handlers.NewPointsHandler(userService),
		Users:     handlers.NewUserHandler(userService),
		WebSocket: handlers.NewWebSocketHandler(hub),
		Limits:    handlers.NewLimitsHandler(store, stats, &cfg.RateLimit.Config),
		Health: handlers.NewHealthHandler(map[string]handlers.Check{
			"mongodb": handlers.MongoCheck(db),
			"redis":   handlers.RedisCheck(redisClient),
			"cache":   handlers.CacheCheck(redisCache),
		}),
		Metrics: prom.Handler(),
	}

	// HTTP
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	router.Use(middleware.SessionMiddleware(middleware.NewSessionStore(rdb, "session"), signer, cfg.Session))
	router.Use(middleware.AuthMiddleware(tokens, userRepo))

	app := routes.NewApplication(router, gate, cfg.APIPrefix)
	if err := routes.SetupRoutes(app, h, &cfg.RateLimit.Config); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		hub.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting",
		"port", cfg.Port,
		"prefix", cfg.APIPrefix,
		"ratelimit", cfg.RateLimit.Enabled,
		"stats", cfg.RateLimit.StatsBackend,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func setupLogger(mode string) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if mode == gin.ReleaseMode {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Upgrade", "Connection", "Sec-WebSocket-Key", "Sec-WebSocket-Version", "Sec-WebSocket-Protocol"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
	}

	// "*" allows any origin, without credentials
	if len(origins) == 1 && origins[0] == "*" {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return c
}
