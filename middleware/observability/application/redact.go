// Package application reúne redação de dados sensíveis, classificação de severidade
// e o fan-out de métricas.
package application

import (
	"strings"
	"unicode/utf8"
)

const (
	Redacted        = "[REDACTED]"
	truncatedSuffix = "...[TRUNCATED]"
)

var DefaultSensitiveKeys = []string{
	"password", "token", "secret", "apikey", "creditcard", "ssn", "authorization", "cookie",
}

// Redactor mascara valores cujo nome de campo contém um termo sensível.
type Redactor struct {
	keys      []string
	maxString int
}

// NewRedactor usa DefaultSensitiveKeys quando keys é vazio. maxString <= 0 vira 1000.
func NewRedactor(maxString int, keys ...string) *Redactor {
	if len(keys) == 0 {
		keys = DefaultSensitiveKeys
	}
	norm := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = normalizeKey(k); k != "" {
			norm = append(norm, k)
		}
	}
	if maxString <= 0 {
		maxString = 1000
	}
	return &Redactor{keys: norm, maxString: maxString}
}

// normalizeKey: minúsculas, sem "_" e "-". "X-Api-Key" e "api_key" viram "xapikey"/"apikey".
func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer("_", "", "-", "").Replace(k)
}

func (r *Redactor) Sensitive(key string) bool {
	k := normalizeKey(key)
	for _, s := range r.keys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Value devolve uma cópia redigida. Não altera a entrada.
func (r *Redactor) Value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if r.Sensitive(k) {
				out[k] = Redacted
				continue
			}
			out[k] = r.Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = r.Value(val)
		}
		return out
	case string:
		return r.truncate(t)
	default:
		return v
	}
}

// Values redige mapas de múltiplos valores (cabeçalhos, query, formulários).
func (r *Redactor) Values(in map[string][]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, vs := range in {
		if r.Sensitive(k) {
			out[k] = Redacted
			continue
		}
		if len(vs) == 1 {
			out[k] = r.truncate(vs[0])
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = r.truncate(v)
		}
		out[k] = list
	}
	return out
}

func (r *Redactor) truncate(s string) string {
	if utf8.RuneCountInString(s) <= r.maxString {
		return s
	}
	runes := []rune(s)
	return string(runes[:r.maxString]) + truncatedSuffix
}
