package pipeline

import (
	"context"
	"net/http"
	"sync"
)

type ctxKey struct{}

// Device guarda informações do cliente derivadas da requisição.
type Device struct {
	UserAgent string
	ClientIP  string
}

// RequestContext é a bolsa de atributos de uma única requisição.
//
// É criada na entrada do pipeline e descartada ao final; nunca é compartilhada entre
// requisições. Os acessores são seguros para concorrência porque estágios externos
// (ex.: observabilidade) leem valores gravados por estágios internos depois que next retorna.
type RequestContext struct {
	mu sync.RWMutex

	requestID string
	identity  *Identity
	token     string
	cacheKey  string
	device    Device
	err       error
	attrs     map[string]any
}

// Ensure garante que a requisição carrega um RequestContext.
// Se já existir, devolve a mesma requisição e o contexto existente.
func Ensure(r *http.Request) (*http.Request, *RequestContext) {
	if rc := From(r.Context()); rc != nil {
		return r, rc
	}
	rc := &RequestContext{}
	return r.WithContext(context.WithValue(r.Context(), ctxKey{}, rc)), rc
}

// From retorna o RequestContext do ctx ou nil.
func From(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	rc, _ := ctx.Value(ctxKey{}).(*RequestContext)
	return rc
}

func (rc *RequestContext) RequestID() string {
	if rc == nil {
		return ""
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.requestID
}

func (rc *RequestContext) SetRequestID(id string) {
	rc.mu.Lock()
	rc.requestID = id
	rc.mu.Unlock()
}

// Identity devolve uma cópia da identidade autenticada, se houver.
func (rc *RequestContext) Identity() (Identity, bool) {
	if rc == nil {
		return Identity{}, false
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.identity == nil {
		return Identity{}, false
	}
	return rc.identity.Clone(), true
}

// SetIdentity grava a identidade uma única vez. Retorna false se já havia uma.
func (rc *RequestContext) SetIdentity(id Identity, token string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.identity != nil {
		return false
	}
	cp := id.Clone()
	rc.identity = &cp
	rc.token = token
	return true
}

func (rc *RequestContext) Token() string {
	if rc == nil {
		return ""
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.token
}

func (rc *RequestContext) CacheKey() string {
	if rc == nil {
		return ""
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.cacheKey
}

func (rc *RequestContext) SetCacheKey(key string) {
	rc.mu.Lock()
	rc.cacheKey = key
	rc.mu.Unlock()
}

func (rc *RequestContext) Device() Device {
	if rc == nil {
		return Device{}
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.device
}

func (rc *RequestContext) SetDevice(d Device) {
	rc.mu.Lock()
	rc.device = d
	rc.mu.Unlock()
}

// Err devolve o erro registrado por Fail, se houver.
func (rc *RequestContext) Err() error {
	if rc == nil {
		return nil
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.err
}

func (rc *RequestContext) setErr(err error) {
	rc.mu.Lock()
	if rc.err == nil {
		rc.err = err
	}
	rc.mu.Unlock()
}

// Set grava um atributo livre.
func (rc *RequestContext) Set(key string, v any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.attrs == nil {
		rc.attrs = make(map[string]any)
	}
	rc.attrs[key] = v
}

func (rc *RequestContext) Get(key string) (any, bool) {
	if rc == nil {
		return nil, false
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.attrs[key]
	return v, ok
}
