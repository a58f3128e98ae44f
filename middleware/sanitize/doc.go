// Package sanitize limpa strings de entrada (query, JSON e formulários) e
// limita o tamanho de arquivos enviados em multipart.
//
// É uma camada de defesa em profundidade, de melhor esforço. Não substitui o
// escape de saída no momento da renderização: quem exibe dados do usuário em
// HTML continua responsável por codificá-los para o contexto certo.
package sanitize
