package application

import (
	"context"
	"time"

	"copilot-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService limita quantas requisições o gateway repassa ao backend
// do copiloto ao mesmo tempo. Assim como o Service do rate limit, não sabe
// nada sobre HTTP: quem traduz ok=false em 503 é o adapter.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga no pool.
// - Pool nil desliga o limite (sempre ok).
// - AcquireTimeout <= 0: espera indefinidamente (até ctx cancelar).
// - AcquireTimeout > 0: espera até o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
