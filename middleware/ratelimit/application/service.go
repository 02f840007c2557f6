package application

import (
	"context"
	"fmt"

	"copilot-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do gate de requisições.
//
// Ele não sabe nada sobre HTTP (headers/status): resolve a política da
// categoria, monta a chave composta cliente:categoria e delega a checagem das
// janelas para o WindowStore.
type Service struct {
	Windows domain.WindowStore
	Limits  domain.PolicyTable
}

// Check decide se a requisição de key na categoria cat pode passar agora.
//
// Fail-open: se o WindowStore falhar (ex: Redis fora do ar ou timeout), a
// decisão é permitir, marcada com Degraded=true. Disponibilidade vale mais do
// que enforcement estrito quando o backend está fora. O erro é tratado aqui —
// em exatamente uma camada — e devolvido apenas como diagnóstico: a Decision
// retornada é sempre utilizável.
func (s Service) Check(ctx context.Context, key domain.Key, cat domain.Category) (domain.Decision, error) {
	if s.Windows == nil {
		return domain.Decision{Allowed: true}, nil
	}

	pol := s.Limits.Resolve(cat)

	// Cada par (cliente, categoria) tem a sua própria janela.
	composite := domain.Key(fmt.Sprintf("%s:%s", key, cat))

	dec, err := s.Windows.Check(ctx, composite, pol)
	if err != nil {
		return domain.Decision{Allowed: true, Degraded: true}, err
	}
	return dec, nil
}
