package infra

import (
	"context"
	"sync"
	"time"

	"copilot-gateway/middleware/ratelimit/domain"
)

// MemoryWindowStore implementa domain.WindowStore em memória: uma sequência
// ordenada de timestamps por chave, protegida por mutex, com limpeza periódica
// de chaves ociosas.
//
// Correto apenas para UMA instância do gateway. Com múltiplas instâncias use o
// RedisWindowStore, que compartilha o estado autoritativo.
type MemoryWindowStore struct {
	mu      sync.Mutex
	entries map[domain.Key]*windowEntry

	window      time.Duration
	burstWindow time.Duration

	idleTTL      time.Duration
	cleanupEvery time.Duration

	now func() time.Time
}

type windowEntry struct {
	// timestamps em ordem de inserção == ordem cronológica.
	timestamps []time.Time
	lastSeen   time.Time
}

type MemoryOption func(*MemoryWindowStore)

// WithMemoryIdleTTL ajusta por quanto tempo uma chave sem tráfego sobrevive no mapa.
func WithMemoryIdleTTL(d time.Duration) MemoryOption {
	return func(s *MemoryWindowStore) { s.idleTTL = d }
}

func WithMemoryCleanupEvery(d time.Duration) MemoryOption {
	return func(s *MemoryWindowStore) { s.cleanupEvery = d }
}

// WithMemoryClock injeta o relógio (para testes determinísticos).
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryWindowStore) { s.now = now }
}

func NewMemoryWindowStore(opts ...MemoryOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		entries:      make(map[domain.Key]*windowEntry),
		window:       domain.SustainedWindow,
		burstWindow:  domain.BurstWindow,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check implementa domain.WindowStore.
//
// Nunca retorna erro: memória local não tem modo de falha relevante aqui.
// O mutex único serializa leitura-modificação-escrita da janela: duas
// requisições concorrentes não passam quando só resta uma vaga.
func (s *MemoryWindowStore) Check(_ context.Context, key domain.Key, pol domain.Policy) (domain.Decision, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		ent = &windowEntry{}
		s.entries[key] = ent
	}
	ent.lastSeen = now

	// 1) expira tudo que saiu da janela sustentada — antes das duas checagens.
	cutoff := now.Add(-s.window)
	valid := ent.timestamps[:0]
	for _, t := range ent.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	ent.timestamps = valid

	// 2) burst primeiro: requisição que estoura as duas janelas reporta burst.
	// A sequência é ordenada, então dá para contar de trás para frente e parar
	// na primeira entrada fora da janela de 1s.
	burstCutoff := now.Add(-s.burstWindow)
	recent := 0
	for i := len(ent.timestamps) - 1; i >= 0; i-- {
		if !ent.timestamps[i].After(burstCutoff) {
			break
		}
		recent++
	}
	if recent >= pol.BurstLimit {
		return domain.Decision{
			Allowed:    false,
			Reason:     domain.ReasonBurstExceeded,
			Limit:      pol.BurstLimit,
			RetryAfter: s.burstWindow,
		}, nil
	}

	// 3) janela sustentada (negar não grava timestamp).
	if len(ent.timestamps) >= pol.SustainedLimit {
		// janela vazia só acontece com limite <= 0; sem entrada mais antiga,
		// o retry é a janela inteira.
		retry := s.window
		if len(ent.timestamps) > 0 {
			retry = retryAfterSustained(now, ent.timestamps[0], s.window)
		}
		return domain.Decision{
			Allowed:    false,
			Reason:     domain.ReasonSustainedExceeded,
			Limit:      pol.SustainedLimit,
			RetryAfter: retry,
		}, nil
	}

	// 4) grava e permite.
	ent.timestamps = append(ent.timestamps, now)
	return domain.Decision{
		Allowed:   true,
		Limit:     pol.SustainedLimit,
		Remaining: pol.SustainedLimit - len(ent.timestamps),
		Reset:     now.Add(s.window),
	}, nil
}

// Len retorna quantas chaves estão rastreadas (inspeção/testes).
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove chaves sem tráfego há mais de idleTTL.
//
// As janelas em si já encolhem a cada Check; isso aqui só evita que o mapa
// cresça sem limite com chaves que nunca mais voltam.
func (s *MemoryWindowStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryWindowStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// retryAfterSustained estima quando a entrada mais antiga sai da janela:
// int(janela - (agora - maisAntigo)) + 1, em segundos inteiros.
func retryAfterSustained(now, oldest time.Time, window time.Duration) time.Duration {
	secs := int((window - now.Sub(oldest)).Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
