// Package application reúne chave, regras de elegibilidade e o serviço de cache.
package application

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
)

const KeyPrefix = "respcache:"

// NormalizePath limpa o caminho e remove a barra final (exceto "/").
// A caixa é preservada: "/x/AbC" e "/x/aBc" são recursos distintos.
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// foldPath é NormalizePath em minúsculas. Usado onde casar a mais é o lado
// seguro: exclusões e tags de invalidação.
func foldPath(p string) string {
	return strings.ToLower(NormalizePath(p))
}

// canonicalQuery ordena por chave e depois por valor.
func canonicalQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := slices.Clone(q[k])
		slices.Sort(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Key gera a chave estável para a requisição. HEAD compartilha a entrada de GET.
// user vazio significa entrada compartilhada.
func Key(method, reqPath string, query url.Values, user string) string {
	if method == http.MethodHead {
		method = http.MethodGet
	}
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{'\n'})
	h.Write([]byte(NormalizePath(reqPath)))
	h.Write([]byte{'\n'})
	h.Write([]byte(canonicalQuery(query)))
	h.Write([]byte{'\n'})
	h.Write([]byte(user))
	return KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// ResourceTag reduz o caminho aos primeiros depth segmentos: "/api/students/7" -> "/api/students".
// A tag ignora caixa, então uma escrita em "/api/Students" invalida "/api/students".
func ResourceTag(reqPath string, depth int) string {
	if depth <= 0 {
		depth = 2
	}
	segs := strings.Split(strings.Trim(foldPath(reqPath), "/"), "/")
	if len(segs) > depth {
		segs = segs[:depth]
	}
	return "/" + strings.Join(segs, "/")
}
