package domain

import "time"

// Tamanhos das duas janelas. São fixos: a tabela de políticas só varia os tetos.
const (
	SustainedWindow = 60 * time.Second
	BurstWindow     = 1 * time.Second
)

// Policy define os dois tetos de uma categoria.
type Policy struct {
	// SustainedLimit é o máximo de requisições na janela de 60s.
	SustainedLimit int
	// BurstLimit é o máximo na janela de 1s.
	BurstLimit int
}

// PolicyTable resolve a Policy de uma categoria, com fallback para Default.
//
// É somente leitura após a inicialização: não precisa de lock.
type PolicyTable struct {
	Categories map[Category]Policy
	Default    Policy
}

// Resolve retorna a política da categoria, ou a default para categoria
// desconhecida.
func (t PolicyTable) Resolve(c Category) Policy {
	if p, ok := t.Categories[c]; ok {
		return p
	}
	return t.Default
}

// DefaultPolicyTable retorna os limites padrão do backend do copiloto.
//
// Observação: register não tem burst próprio e herda o burst default (10/s).
func DefaultPolicyTable() PolicyTable {
	return PolicyTable{
		Categories: map[Category]Policy{
			CategoryChat:       {SustainedLimit: 30, BurstLimit: 3},
			CategoryChatStream: {SustainedLimit: 20, BurstLimit: 2},
			CategoryLogin:      {SustainedLimit: 10, BurstLimit: 2},
			CategoryRegister:   {SustainedLimit: 5, BurstLimit: 10},
		},
		Default: Policy{SustainedLimit: 100, BurstLimit: 10},
	}
}
