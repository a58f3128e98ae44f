// Package application contém os casos de uso do rate limit e do limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Policy.Resolve escolhe a chave/teto e Service.CheckAndIncrement decide allow/deny.
package application
