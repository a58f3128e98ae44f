// Package domain define amostras de requisição, classes de erro e os contratos de métricas.
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrFatal marca erros que devem ser tratados como críticos mesmo sem serem runtime.Error.
var ErrFatal = errors.New("fatal")

type ErrorClass string

const (
	ClassNone     ErrorClass = ""
	ClassCritical ErrorClass = "critical"
	ClassWarning  ErrorClass = "warning"
)

// Sample é uma requisição concluída, do ponto de vista das métricas.
type Sample struct {
	Method     string
	Path       string
	Route      string // padrão do roteador quando conhecido (ex.: /api/students/{id})
	Status     int
	Duration   time.Duration
	ErrorClass ErrorClass
	At         time.Time
}

// Failed indica que a requisição terminou em panic ou erro registrado.
func (s Sample) Failed() bool { return s.ErrorClass != ClassNone }

// Endpoint prefere a rota ao caminho, para não explodir a cardinalidade.
func (s Sample) Endpoint() string {
	p := s.Route
	if p == "" {
		p = s.Path
	}
	return s.Method + " " + p
}

// StatusClass devolve "2xx", "4xx" etc.
func (s Sample) StatusClass() string {
	if s.Status < 100 || s.Status > 599 {
		return "unknown"
	}
	return string(rune('0'+s.Status/100)) + "xx"
}

// Snapshot é a leitura agregada dos contadores.
type Snapshot struct {
	Total        int64            `json:"total"`
	StatusClass  map[string]int64 `json:"status_class"`
	MethodStatus map[string]int64 `json:"method_status"`
	Errors       map[string]int64 `json:"errors"`
	ErrorClasses map[string]int64 `json:"errors_class"`
	Latency      Latency          `json:"latency"`
}

// Latency resume a janela de amostras recentes, em milissegundos.
type Latency struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
}

// Sink recebe amostras. Implementações devem ser seguras para uso concorrente.
type Sink interface {
	Record(ctx context.Context, s Sample) error
}

// MetricsStore é um Sink que também sabe devolver o agregado.
type MetricsStore interface {
	Sink
	Snapshot(ctx context.Context) (Snapshot, error)
}
