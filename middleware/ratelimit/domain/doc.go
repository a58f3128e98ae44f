// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas: janela fixa,
// chaves por bucket (auth/user/ip), decisão e eventos de estatística.
package domain
