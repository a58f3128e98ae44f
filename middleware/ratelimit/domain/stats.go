package domain

import (
	"context"
	"time"
)

type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeDenied   Outcome = "denied"
	OutcomeFailOpen Outcome = "fail_open"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de chaves no Redis).
type StatsEvent struct {
	Key     Key
	Bucket  Bucket
	Outcome Outcome

	Method string
	Path   string

	At time.Time
}

// StatsStore persiste estatísticas do rate limit.
// O middleware trata erro como best-effort (não derruba a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// Counters soma os desfechos de um recorte (total, bucket, rota ou chave).
type Counters struct {
	Allowed  int64 `json:"allowed"`
	Denied   int64 `json:"denied"`
	FailOpen int64 `json:"fail_open"`
}

func (c *Counters) Add(o Outcome, n int64) {
	switch o {
	case OutcomeDenied:
		c.Denied += n
	case OutcomeFailOpen:
		c.FailOpen += n
	default:
		c.Allowed += n
	}
}

type StatsSummary struct {
	Total    Counters            `json:"total"`
	ByBucket map[Bucket]Counters `json:"by_bucket"`
}

// StatsReader expõe o agregado para consulta (ex.: endpoint operacional).
type StatsReader interface {
	Summary(ctx context.Context) (StatsSummary, error)
}
