// Package observability atribui request id, mede latência, registra métricas
// e emite um log estruturado por requisição, com dados sensíveis redigidos.
//
// Panics são observados (log e métrica) e relançados: quem converte em 500 é o
// estágio de recuperação mais externo.
package observability
