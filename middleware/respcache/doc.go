// Package respcache guarda respostas GET/HEAD de sucesso em JSON e as reproduz
// enquanto o TTL durar.
//
// Sem single-flight por padrão: misses concorrentes para a mesma chave vão ao
// downstream e a última escrita vence. Options.SingleFlight muda isso.
// A invalidação padrão é só por TTL; Options.InvalidateOnWrite liga a remoção por
// recurso após escritas bem-sucedidas.
package respcache
