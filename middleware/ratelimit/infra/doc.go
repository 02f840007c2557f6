// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryWindowStore: janela deslizante de timestamps por chave, em memória
//   - RedisWindowStore: mesma janela em sorted sets, checagem atômica via Lua
//   - MemoryStatsStore / RedisStatsStore / PrometheusStatsStore: agregação de decisões
//   - ChanPool: semáforo simples para limite de concorrência
package infra
