package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"time"
)

type Key string

// Category é a categoria de limite à qual um endpoint pertence (ex: chat, login).
type Category string

const (
	CategoryChat       Category = "chat"
	CategoryChatStream Category = "chat_stream"
	CategoryLogin      Category = "login"
	CategoryRegister   Category = "register"
	CategoryDefault    Category = "default"
)

// Reason indica qual janela causou o bloqueio.
type Reason string

const (
	ReasonBurstExceeded     Reason = "burst_exceeded"
	ReasonSustainedExceeded Reason = "sustained_exceeded"
)

// ErrStoreUnavailable sinaliza que o backend compartilhado (ex: Redis) falhou
// ou não respondeu dentro do timeout. A infra embrulha a causa com %w; quem
// trata é a camada application, em um único lugar (fail-open).
var ErrStoreUnavailable = errors.New("window store unavailable")

// Decision é o resultado de uma checagem.
//
// Negar não é erro: é valor de retorno de primeira classe. Erro fica reservado
// para falha de infraestrutura.
type Decision struct {
	Allowed bool

	// Reason só é preenchido quando Allowed=false.
	Reason Reason

	// Limit é o limite aplicável: o de burst quando Reason=ReasonBurstExceeded,
	// o sustentado nos demais casos.
	Limit int

	// Remaining e Reset só fazem sentido quando Allowed=true.
	Remaining int
	Reset     time.Time

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	RetryAfter time.Duration

	// Degraded marca decisão tomada em fail-open (backend indisponível).
	Degraded bool
}

// WindowStore mantém as janelas deslizantes de timestamps por chave composta
// (cliente:categoria) e aplica a política sempre na mesma ordem:
//
//  1. expira entradas mais velhas que a janela sustentada (60s)
//  2. checa a janela de burst (1s) — negar aqui não grava timestamp
//  3. checa a janela sustentada — idem
//  4. grava o timestamp atual e permite
//
// A checagem de burst sempre vem antes da sustentada: uma requisição que
// estoura as duas é reportada como burst.
//
// Chamadas concorrentes para a mesma chave devem ser serializadas pela
// implementação (mutex em memória, script atômico no Redis).
type WindowStore interface {
	Check(ctx context.Context, key Key, policy Policy) (Decision, error)
}
