// Package ratelimit fornece adapters HTTP (net/http) para o gate de requisições
// do backend do copiloto: rate limit em janela deslizante e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny + fail-open, acquire/timeout) sem net/http
//   - infra: implementações concretas (janelas em memória ou Redis, stats, semáforo)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + classificação
//     de categoria + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Paths de health passam direto (nunca são limitados)
//  2. Extrai a chave do cliente (user id vindo da auth, senão IP/XFF)
//  3. Classifica o path em uma categoria (chat, chat_stream, login, register, default)
//  4. Chama a camada application para obter a decisão das duas janelas (1s e 60s)
//  5. Se bloqueado, responde 429 com Retry-After e corpo JSON; se o backend de
//     janelas estiver fora do ar, libera em modo degradado (fail-open)
//  6. Se permitido, grava os headers X-RateLimit-* e chama o próximo handler
//
// A configuração do binário gateway (cmd/gateway) controla o comportamento:
// RATE_BACKEND escolhe memória ou Redis, LIMITS_FILE sobrescreve a tabela de
// categorias, CONCURRENCY_MAX e CONCURRENCY_TIMEOUT regulam o semáforo.
package ratelimit
