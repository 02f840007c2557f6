package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"copilot-gateway/middleware/ratelimit/application"
	"copilot-gateway/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	// Windows é o backend de janelas (memória ou Redis). Nil desliga o gate.
	Windows domain.WindowStore

	// Limits é a tabela de políticas por categoria. Zero-value usa os padrões.
	Limits domain.PolicyTable

	// Stats recebe cada decisão (best-effort; erro não derruba a request).
	Stats domain.StatsStore

	KeyFn KeyFunc

	// UserIDHeader é o header confiável que a camada de auth preenche com o id
	// do usuário autenticado (vira chave "user:<id>"). Sem ele, cai para o IP.
	UserIDHeader       string
	TrustXForwardedFor bool

	// BypassPaths nunca passam pelo gate. Default: /health e /api/health.
	BypassPaths []string

	RejectStatus        int
	AddRateLimitHeaders bool

	Logger *zap.Logger
}

func DefaultKeyFunc(userIDHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if userIDHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(userIDHeader)); v != "" {
				return "user:" + v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return "ip:" + ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return "ip:" + host
		}
		if r.RemoteAddr != "" {
			return "ip:" + r.RemoteAddr
		}
		return "ip:unknown"
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.UserIDHeader, opts.TrustXForwardedFor)
	}
	if opts.Limits.Categories == nil && opts.Limits.Default == (domain.Policy{}) {
		opts.Limits = domain.DefaultPolicyTable()
	}
	if opts.BypassPaths == nil {
		opts.BypassPaths = []string{"/health", "/api/health"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := application.Service{
		Windows: opts.Windows,
		Limits:  opts.Limits,
	}

	bypass := make(map[string]struct{}, len(opts.BypassPaths))
	for _, p := range opts.BypassPaths {
		bypass[p] = struct{}{}
	}

	// Com o Redis fora do ar, todo request geraria um warn; um aviso por
	// segundo é suficiente para o operador perceber a degradação.
	degradedLog := rate.NewLimiter(rate.Every(time.Second), 1)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := bypass[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			key := domain.Key(opts.KeyFn(r))
			cat := Classify(r.URL.Path)

			dec, err := svc.Check(r.Context(), key, cat)
			if err != nil && degradedLog.Allow() {
				logger.Warn("gate degradado: backend de janelas indisponível, liberando",
					zap.String("category", string(cat)),
					zap.Error(err))
			}

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:      key,
					Category: cat,
					Allowed:  dec.Allowed,
					Reason:   dec.Reason,
					Degraded: dec.Degraded,
					Method:   r.Method,
					Path:     r.URL.Path,
					At:       time.Now(),
				})
			}

			if !dec.Allowed {
				logger.Warn("requisição bloqueada pelo rate limit",
					zap.String("key", string(key)),
					zap.String("category", string(cat)),
					zap.String("reason", string(dec.Reason)),
					zap.Duration("retry_after", dec.RetryAfter))
				writeRejection(w, opts.RejectStatus, dec)
				return
			}

			if opts.AddRateLimitHeaders && !dec.Degraded {
				h := w.Header()
				h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
				h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				h.Set("X-RateLimit-Reset", formatInt64(dec.Reset.Unix()))
			}

			next.ServeHTTP(w, r)
		})
	}
}

type rejectionBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
	Limit      int    `json:"limit"`
	Window     string `json:"window"`
}

// writeRejection traduz a negação para a resposta 429: Retry-After + headers
// de quota + corpo JSON no formato que os clientes do copiloto já conhecem.
func writeRejection(w http.ResponseWriter, status int, dec domain.Decision) {
	retry := int(dec.RetryAfter / time.Second)
	if retry < 1 {
		retry = 1
	}

	msg := "Rate limit exceeded"
	window := "1 minute"
	if dec.Reason == domain.ReasonBurstExceeded {
		msg = "Burst limit exceeded"
		window = "1 second"
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Retry-After", formatInt(retry))
	h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset", "0")

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rejectionBody{
		Error:      "rate_limit_exceeded",
		Message:    msg,
		RetryAfter: retry,
		Limit:      dec.Limit,
		Window:     window,
	})
}
