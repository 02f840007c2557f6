package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"copilot-gateway/middleware/ratelimit/domain"
)

type config struct {
	listenAddr  string
	upstreamURL string

	rateEnabled bool
	rateBackend string // "memory" | "redis"
	userHeader  string
	trustXFF    bool
	addHeaders  bool

	limits domain.PolicyTable

	redisAddr     string
	redisPassword string
	redisDB       int
	redisTimeout  time.Duration

	statsBackend   string // "none" | "memory" | "redis" | "prometheus"
	statsPrefix    string
	statsTTL       time.Duration
	statsBucket    string
	statsTrackKeys bool

	concurrencyMax     int
	concurrencyTimeout time.Duration
}

// readConfig monta a configuração a partir das variáveis de ambiente, com uma
// tabela de limites opcional em YAML (LIMITS_FILE) por cima dos padrões.
func readConfig() (config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("RATE_ENABLED", true)
	v.SetDefault("RATE_BACKEND", "memory")
	v.SetDefault("RATE_USER_HEADER", "X-User-ID")
	v.SetDefault("TRUST_XFF", false)
	v.SetDefault("ADD_RATELIMIT_HEADERS", true)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TIMEOUT", "500ms")
	v.SetDefault("STATS_BACKEND", "prometheus")
	v.SetDefault("STATS_PREFIX", "ratelimit:stats")
	v.SetDefault("STATS_TTL", "24h")
	v.SetDefault("STATS_BUCKET", "minute")
	v.SetDefault("STATS_TRACK_KEYS", false)
	v.SetDefault("CONCURRENCY_MAX", 100)
	v.SetDefault("CONCURRENCY_TIMEOUT", "0s")

	cfg := config{
		listenAddr:  v.GetString("LISTEN_ADDR"),
		upstreamURL: v.GetString("UPSTREAM_URL"),

		rateEnabled: v.GetBool("RATE_ENABLED"),
		rateBackend: strings.ToLower(v.GetString("RATE_BACKEND")),
		userHeader:  v.GetString("RATE_USER_HEADER"),
		trustXFF:    v.GetBool("TRUST_XFF"),
		addHeaders:  v.GetBool("ADD_RATELIMIT_HEADERS"),

		redisAddr:     v.GetString("REDIS_ADDR"),
		redisPassword: v.GetString("REDIS_PASSWORD"),
		redisDB:       v.GetInt("REDIS_DB"),
		redisTimeout:  v.GetDuration("REDIS_TIMEOUT"),

		statsBackend:   strings.ToLower(v.GetString("STATS_BACKEND")),
		statsPrefix:    v.GetString("STATS_PREFIX"),
		statsTTL:       v.GetDuration("STATS_TTL"),
		statsBucket:    v.GetString("STATS_BUCKET"),
		statsTrackKeys: v.GetBool("STATS_TRACK_KEYS"),

		concurrencyMax:     v.GetInt("CONCURRENCY_MAX"),
		concurrencyTimeout: v.GetDuration("CONCURRENCY_TIMEOUT"),
	}

	cfg.limits = domain.DefaultPolicyTable()
	if path := strings.TrimSpace(v.GetString("LIMITS_FILE")); path != "" {
		limits, err := readLimits(path)
		if err != nil {
			return config{}, fmt.Errorf("lendo LIMITS_FILE %q: %w", path, err)
		}
		cfg.limits = limits
	}

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	switch cfg.rateBackend {
	case "memory", "redis":
	default:
		return config{}, fmt.Errorf("RATE_BACKEND must be memory or redis, got %q", cfg.rateBackend)
	}
	switch cfg.statsBackend {
	case "none", "memory", "redis", "prometheus":
	default:
		return config{}, fmt.Errorf("STATS_BACKEND must be none, memory, redis or prometheus, got %q", cfg.statsBackend)
	}
	needsRedis := cfg.rateBackend == "redis" || cfg.statsBackend == "redis"
	if needsRedis && strings.TrimSpace(cfg.redisAddr) == "" {
		return config{}, errors.New("REDIS_ADDR is required when RATE_BACKEND=redis or STATS_BACKEND=redis")
	}
	if cfg.redisTimeout <= 0 {
		return config{}, errors.New("REDIS_TIMEOUT must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

type limitEntry struct {
	PerMinute int `mapstructure:"per_minute"`
	PerSecond int `mapstructure:"per_second"`
}

// readLimits carrega a tabela de limites de um YAML no formato:
//
//	default:
//	  per_minute: 100
//	  per_second: 10
//	categories:
//	  chat:
//	    per_minute: 30
//	    per_second: 3
//
// Campos omitidos (ou <= 0) mantêm o valor padrão da categoria.
func readLimits(path string) (domain.PolicyTable, error) {
	lv := viper.New()
	lv.SetConfigFile(path)
	if err := lv.ReadInConfig(); err != nil {
		return domain.PolicyTable{}, err
	}

	var raw struct {
		Default    limitEntry            `mapstructure:"default"`
		Categories map[string]limitEntry `mapstructure:"categories"`
	}
	if err := lv.Unmarshal(&raw); err != nil {
		return domain.PolicyTable{}, err
	}

	table := domain.DefaultPolicyTable()
	if raw.Default.PerMinute > 0 {
		table.Default.SustainedLimit = raw.Default.PerMinute
	}
	if raw.Default.PerSecond > 0 {
		table.Default.BurstLimit = raw.Default.PerSecond
	}
	for name, e := range raw.Categories {
		cat := domain.Category(strings.ToLower(strings.TrimSpace(name)))
		if cat == "" {
			continue
		}
		p := table.Resolve(cat)
		if e.PerMinute > 0 {
			p.SustainedLimit = e.PerMinute
		}
		if e.PerSecond > 0 {
			p.BurstLimit = e.PerSecond
		}
		table.Categories[cat] = p
	}
	return table, nil
}
