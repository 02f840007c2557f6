package infra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"copilot-gateway/middleware/ratelimit/domain"
)

// RedisWindowStore implementa domain.WindowStore sobre um sorted set por chave:
// cada requisição vira um membro (UUID) com score = unix-milli. Isso permite
// range por tempo (purge e contagem de burst) direto no servidor.
//
// A checagem inteira roda em UM script Lua (uma ida ao Redis): expirar, contar,
// contar burst e — só quando permitido — gravar o membro e renovar o TTL.
// O script executa sem intercalação no servidor, então duas instâncias do
// gateway nunca admitem juntas a última vaga de uma chave.
type RedisWindowStore struct {
	rdb    *redis.Client
	script *redis.Script

	prefix string

	window      time.Duration
	burstWindow time.Duration

	// opTimeout limita a ida ao Redis. Estourou = backend indisponível
	// (fail-open acontece na camada application, não aqui).
	opTimeout time.Duration

	// keyGrace é a folga de TTL além da janela, para não acumular chaves de
	// clientes que sumiram.
	keyGrace time.Duration

	now func() time.Time
}

// Retornos do script: {allowed, reason, count, oldest_score}.
// reason: 0 = ok, 1 = burst, 2 = sustentado.
const redisCheckScript = `
local key = KEYS[1]
local now = ARGV[1]
local purge_max = ARGV[2]
local burst_min = ARGV[3]
local limit = tonumber(ARGV[4])
local burst = tonumber(ARGV[5])
local member = ARGV[6]
local ttl = tonumber(ARGV[7])

redis.call("ZREMRANGEBYSCORE", key, "-inf", purge_max)

local burst_count = redis.call("ZCOUNT", key, burst_min, "+inf")
if burst_count >= burst then
  return {0, 1, burst_count, "0"}
end

local count = redis.call("ZCARD", key)
if count >= limit then
  local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
  local oldest_score = "0"
  if oldest and oldest[2] then
    oldest_score = oldest[2]
  end
  return {0, 2, count, oldest_score}
end

redis.call("ZADD", key, now, member)
redis.call("EXPIRE", key, ttl)
return {1, 0, count + 1, "0"}
`

type RedisOption func(*RedisWindowStore)

func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisWindowStore) { s.prefix = prefix }
}

// WithRedisOpTimeout limita a duração da ida ao Redis por checagem.
func WithRedisOpTimeout(d time.Duration) RedisOption {
	return func(s *RedisWindowStore) { s.opTimeout = d }
}

// WithRedisClock injeta o relógio (para testes determinísticos).
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisWindowStore) { s.now = now }
}

func NewRedisWindowStore(rdb *redis.Client, opts ...RedisOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:         rdb,
		script:      redis.NewScript(redisCheckScript),
		prefix:      "ratelimit:window",
		window:      domain.SustainedWindow,
		burstWindow: domain.BurstWindow,
		opTimeout:   500 * time.Millisecond,
		keyGrace:    10 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check implementa domain.WindowStore.
//
// A leitura é sempre "read-through": nenhuma contagem fica cacheada entre
// requisições — o estado autoritativo mora no Redis.
func (s *RedisWindowStore) Check(ctx context.Context, key domain.Key, pol domain.Policy) (domain.Decision, error) {
	now := s.now()

	if s.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
	}

	nowMs := now.UnixMilli()
	// Os limites de range vão prontos como string: purge inclusivo no corte da
	// janela sustentada, burst exclusivo (score estritamente dentro de 1s).
	purgeMax := strconv.FormatInt(nowMs-s.window.Milliseconds(), 10)
	burstMin := "(" + strconv.FormatInt(nowMs-s.burstWindow.Milliseconds(), 10)
	ttlSec := int64((s.window + s.keyGrace) / time.Second)

	vals, err := s.script.Run(ctx, s.rdb,
		[]string{s.prefix + ":" + string(key)},
		nowMs,
		purgeMax,
		burstMin,
		pol.SustainedLimit,
		pol.BurstLimit,
		uuid.NewString(),
		ttlSec,
	).Result()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: script: %v", domain.ErrStoreUnavailable, err)
	}

	return s.decisionFromReply(vals, pol, now)
}

func (s *RedisWindowStore) decisionFromReply(vals interface{}, pol domain.Policy, now time.Time) (domain.Decision, error) {
	arr, ok := vals.([]interface{})
	if !ok || len(arr) < 4 {
		return domain.Decision{}, fmt.Errorf("%w: resposta inesperada do script: %v", domain.ErrStoreUnavailable, vals)
	}

	allowed, err := replyInt(arr[0])
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	reason, err := replyInt(arr[1])
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	count, err := replyInt(arr[2])
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	oldestMs, err := replyInt(arr[3])
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	if allowed == 1 {
		return domain.Decision{
			Allowed:   true,
			Limit:     pol.SustainedLimit,
			Remaining: pol.SustainedLimit - int(count),
			Reset:     now.Add(s.window),
		}, nil
	}

	if reason == 1 {
		return domain.Decision{
			Allowed:    false,
			Reason:     domain.ReasonBurstExceeded,
			Limit:      pol.BurstLimit,
			RetryAfter: s.burstWindow,
		}, nil
	}

	retry := s.window
	if oldestMs > 0 {
		retry = retryAfterSustained(now, time.UnixMilli(oldestMs), s.window)
	}
	return domain.Decision{
		Allowed:    false,
		Reason:     domain.ReasonSustainedExceeded,
		Limit:      pol.SustainedLimit,
		RetryAfter: retry,
	}, nil
}

// replyInt aceita os formatos que o Redis (e o miniredis) devolvem para
// números vindos de Lua: int64 direto ou string, inclusive score em float.
func replyInt(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case []byte:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("tipo inesperado %T na resposta do script", v)
	}
}
