package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
// Category é pequena e fixa, então é a dimensão preferida para agregação.
type StatsEvent struct {
	Key      Key
	Category Category
	Allowed  bool

	// Reason só vem preenchido quando Allowed=false.
	Reason Reason

	// Degraded indica decisão de fail-open (backend fora do ar).
	Degraded bool

	Method string
	Path   string

	At time.Time
}

// Outcome resume o evento em um rótulo estável para agregação
// (allowed | burst_exceeded | sustained_exceeded | degraded).
func (ev StatsEvent) Outcome() string {
	switch {
	case ev.Degraded:
		return "degraded"
	case ev.Allowed:
		return "allowed"
	case ev.Reason != "":
		return string(ev.Reason)
	default:
		return "denied"
	}
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
