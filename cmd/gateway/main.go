package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"copilot-gateway/middleware/ratelimit"
	"copilot-gateway/middleware/ratelimit/domain"
	"copilot-gateway/middleware/ratelimit/infra"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := readConfig()
	if err != nil {
		logger.Fatal("configuração inválida", zap.Error(err))
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		logger.Fatal("UPSTREAM_URL inválida", zap.Error(err))
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("erro no proxy", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	needsRedis := cfg.rateBackend == "redis" || cfg.statsBackend == "redis"
	if needsRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancelPing()
		if err != nil {
			// Não é fatal: o gate opera em fail-open até o Redis voltar.
			logger.Warn("redis indisponível na subida; gate começa degradado", zap.Error(err))
		}
	}

	var windows domain.WindowStore
	if cfg.rateBackend == "redis" {
		windows = infra.NewRedisWindowStore(rdb, infra.WithRedisOpTimeout(cfg.redisTimeout))
	} else {
		mem := infra.NewMemoryWindowStore()
		mem.StartJanitor(ctx)
		windows = mem
	}

	var stats domain.StatsStore
	switch cfg.statsBackend {
	case "prometheus":
		ps, err := infra.NewPrometheusStatsStore(prometheus.DefaultRegisterer)
		if err != nil {
			logger.Fatal("registrando métricas", zap.Error(err))
		}
		stats = ps
	case "redis":
		stats = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		)
	case "memory":
		stats = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.statsTrackKeys))
	}

	// Endpoints locais do gateway; todo o resto vai para o upstream.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"copilot-gateway"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", proxy)

	h := http.Handler(mux)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)
	if cfg.rateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Windows:             windows,
			Limits:              cfg.limits,
			Stats:               stats,
			UserIDHeader:        cfg.userHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			BypassPaths:         []string{"/health", "/api/health", "/metrics"},
			RejectStatus:        http.StatusTooManyRequests,
			AddRateLimitHeaders: cfg.addHeaders,
			Logger:              logger,
		})(h)
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway escutando",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()))
	logger.Info("rate limit",
		zap.Bool("enabled", cfg.rateEnabled),
		zap.String("backend", cfg.rateBackend),
		zap.String("user_header", cfg.userHeader),
		zap.Bool("trust_xff", cfg.trustXFF))
	logger.Info("stats",
		zap.String("backend", cfg.statsBackend))
	logger.Info("concorrência",
		zap.Int("max", cfg.concurrencyMax),
		zap.Duration("acquire_timeout", cfg.concurrencyTimeout))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("erro no servidor", zap.Error(err))
	}
}
