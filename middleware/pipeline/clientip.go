package pipeline

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolve o IP do cliente.
//
// Com trustProxy, prefere X-Forwarded-For e depois X-Real-IP (primeiro valor da lista,
// sem espaços): o serviço roda atrás de um proxy reverso. Sem cabeçalhos, usa o host
// de RemoteAddr; em último caso "unknown".
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range []string{"X-Forwarded-For", "X-Real-IP"} {
			if ip := firstListValue(r.Header.Get(h)); ip != "" {
				return ip
			}
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return "unknown"
}

func firstListValue(v string) string {
	if v == "" {
		return ""
	}
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
