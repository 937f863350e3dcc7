package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/handlers"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/config"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/database"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/discord"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/leaderboard"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/tokens"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/pkg/logger"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/pkg/metrics"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	for _, key := range cfg.Missing() {
		logger.Warnf("config key %s not set; dependent endpoints answer 424", key)
	}

	ctx := context.Background()

	// A nil dependency leaves its endpoints answering 424.
	var (
		exchanger handlers.TokenExchanger
		board     handlers.Leaderboard
		validator middleware.Validator
		store     *database.Store
	)

	codec := tokens.NewCodec(cfg.JWT.Secret)
	if codec.Configured() {
		validator = codec
	}
	if cfg.DiscordConfigured() {
		exchanger = discord.NewBridge(cfg.Discord, codec, discord.WithLogger(logger.Named("ExchangeCodeForJwt")))
	}

	if cfg.Store.URI != "" {
		s, err := database.Open(ctx, cfg.Store)
		if err != nil {
			logger.Warnf("highscore store unavailable: %v", err)
		} else {
			store = s
			defer func() { _ = store.Close(ctx) }()
			var opts []leaderboard.Option
			if cfg.Leaderboard.ConditionalCommit {
				opts = append(opts, leaderboard.WithConditionalCommit(cfg.Leaderboard.MaxAttempts))
			}
			board = leaderboard.NewEngine(store.Table, logger.Named("Highscores"), opts...)
			logger.Infof("highscore store: %s table=%s", store.Kind, cfg.Store.Table)
		}
	}

	r := gin.New()

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})
	r.Use(middleware.RequestID(), gin.Logger(), gin.Recovery())

	h := handlers.NewHighscoreHandler(exchanger, board, validator)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && store != nil && store.Redis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			h.WithLimiter(middleware.RedisRateLimitMiddleware(store.Redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			h.WithLimiter(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	h.Register(r)

	// readiness endpoint: 200 only when every dependency is wired and the store answers
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"discord": exchanger != nil,
			"jwt":     validator != nil,
			"store":   store != nil,
		}
		if store != nil {
			pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			deps["store"] = store.Ping(pingCtx) == nil
			cancel()
		}
		ready := true
		for _, ok := range deps {
			ready = ready && ok
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	logger.Infof("Starting highscore service on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server failed: %v", err)
	}
}
