// Package application contém os casos de uso (regras de aplicação) para o gate
// de requisições e o limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Check(ctx, key, categoria) retorna uma Decision (allow/deny +
// retry-after + quota restante) e aplica o fail-open quando o backend de
// janelas está indisponível.
package application
