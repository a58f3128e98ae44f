// Package ratelimit fornece os adapters HTTP (net/http) de rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (janela fixa, buckets, decisão), sem net/http
//   - application: política de chaves e decisão allow/deny, sem net/http
//   - infra: stores concretos (Redis/Lua, memória), estatísticas, semáforo
//   - ratelimit (este pacote): middlewares HTTP, extração do cliente, status/headers
//
// Fluxo do Middleware:
//
//  1. Extrai o IP do cliente (X-Forwarded-For/X-Real-IP quando confiável) e a identidade, se houver
//  2. A Policy escolhe o bucket: rota de autenticação > usuário (teto por papel) > IP
//  3. Incrementa a janela no store e decide
//  4. Seta X-RateLimit-Limit/Remaining/Reset; se negado responde 429 com Retry-After
//
// Se o store falhar, a requisição passa (fail-open) e a falha é logada com amostragem.
package ratelimit
