// Package infra contém implementações concretas do rate limit:
//
//   - RedisCounterStore: janela fixa atômica via script Lua (produção, multi-instância)
//   - MemoryCounterStore: janela fixa em memória (dev/testes/instância única)
//   - RedisStatsStore / MemoryStatsStore: estatísticas de decisão
//   - SemaphoreLimiter: vagas de requisições simultâneas (x/sync/semaphore)
package infra
