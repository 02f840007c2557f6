// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
//
// Os tipos centrais são Policy/PolicyTable (tetos por categoria), Decision
// (resultado de uma checagem, incluindo negar como valor) e WindowStore
// (janela deslizante de timestamps por chave).
package domain
