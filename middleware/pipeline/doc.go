// Package pipeline reúne as peças compartilhadas por todos os estágios do pipeline HTTP.
//
// Cada estágio é um middleware net/http (func(http.Handler) http.Handler) independente.
// Este pacote fornece:
//
//   - RequestContext: a "bolsa" mutável por requisição (request id, identidade, token, cache key)
//   - envelopes JSON padronizados de sucesso e erro
//   - ResponseWriter com captura de status/tamanho e hooks antes da primeira escrita
//   - Chain/Builder para compor estágios em ordem configurável
//   - Recover: a fronteira de erro mais externa (panic -> 500 SERVER_ERROR)
//
// Nenhum estágio assume que outro rodou antes: quem precisa de um atributo
// (ex.: identidade) deve checar RequestContext e tratar a ausência.
package pipeline
