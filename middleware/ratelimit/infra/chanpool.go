package infra

import (
	"context"

	"copilot-gateway/middleware/ratelimit/domain"
)

// chanPool implementa domain.SlotPool com um channel usado como semáforo:
// cada requisição em voo para o upstream ocupa uma posição do buffer.
type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool com `max` vagas simultâneas.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}
