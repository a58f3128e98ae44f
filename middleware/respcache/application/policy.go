package application

import (
	"mime"
	"net/http"
	"strings"
)

var DefaultExcludedPrefixes = []string{"/api/auth", "/api/me", "/api/user", "/api/admin"}

// Excluded informa se o caminho está sob algum prefixo excluído (por segmento,
// sem diferenciar caixa).
func Excluded(reqPath string, prefixes []string) bool {
	p := foldPath(reqPath)
	for _, pre := range prefixes {
		pre = strings.TrimSuffix(foldPath(pre), "/")
		if pre == "" {
			continue
		}
		if p == pre || strings.HasPrefix(p, pre+"/") {
			return true
		}
	}
	return false
}

// CacheControlHas procura uma diretiva (ex.: "no-store") no valor de Cache-Control.
func CacheControlHas(value, directive string) bool {
	for part := range strings.SplitSeq(value, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), "=")
		if strings.EqualFold(name, directive) {
			return true
		}
	}
	return false
}

// IsJSON aceita application/json e qualquer tipo +json.
func IsJSON(contentType string) bool {
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return media == "application/json" || strings.HasSuffix(media, "+json")
}

// CacheableResponse aplica o portão de resposta: 2xx (exceto 206), JSON,
// sem Set-Cookie e sem no-store/private vindos do upstream.
func CacheableResponse(status int, h http.Header) bool {
	if status < 200 || status >= 300 || status == http.StatusPartialContent {
		return false
	}
	if !IsJSON(h.Get("Content-Type")) {
		return false
	}
	if len(h.Values("Set-Cookie")) > 0 {
		return false
	}
	cc := strings.Join(h.Values("Cache-Control"), ",")
	return !CacheControlHas(cc, "no-store") && !CacheControlHas(cc, "private")
}
