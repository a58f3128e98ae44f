// Package config carrega a configuração do gateway: defaults, depois um YAML opcional,
// depois variáveis de ambiente PIPELINE_ (o duplo sublinhado separa níveis).
//
//	PIPELINE_RATELIMIT__AUTH_MAX=5  ->  ratelimit.auth_max
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix = "PIPELINE_"
	// EnvFile aponta o YAML; sem ela, config.yaml no diretório atual (se existir).
	EnvFile     = "PIPELINE_CONFIG"
	defaultFile = "config.yaml"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Server        Server        `koanf:"server"`
	Upstream      Upstream      `koanf:"upstream"`
	Redis         Redis         `koanf:"redis"`
	Log           Log           `koanf:"log"`
	Sentry        Sentry        `koanf:"sentry"`
	JWT           JWT           `koanf:"jwt"`
	RateLimit     RateLimit     `koanf:"ratelimit"`
	Concurrency   Concurrency   `koanf:"concurrency"`
	Cache         Cache         `koanf:"cache"`
	Sanitize      Sanitize      `koanf:"sanitize"`
	Observability Observability `koanf:"observability"`
	Security      Security      `koanf:"security"`
	CORS          CORS          `koanf:"cors"`
	Tracing       Tracing       `koanf:"tracing"`
	Pipeline      Pipeline      `koanf:"pipeline"`
	Routes        []Route       `koanf:"routes" validate:"dive"`

	// RolePermissions mapeia papel -> permissões ("*" e "recurso.*" aceitos).
	RolePermissions map[string][]string `koanf:"role_permissions"`
}

type Server struct {
	Addr              string        `koanf:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// TrustProxyHeaders libera X-Forwarded-For/X-Real-IP na resolução do IP do cliente.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`
}

type Upstream struct {
	URL string `koanf:"url" validate:"omitempty,url"`
}

// Redis vazio faz todos os stores rodarem em memória (uma instância apenas).
type Redis struct {
	URL       string        `koanf:"url" validate:"omitempty,url"`
	OpTimeout time.Duration `koanf:"op_timeout"`
}

type Log struct {
	Level string `koanf:"level" validate:"oneof=debug info warn warning error"`
}

type Sentry struct {
	DSN         string `koanf:"dsn" validate:"omitempty,url"`
	Environment string `koanf:"environment"`
	Release     string `koanf:"release"`
}

type JWT struct {
	Secret string        `koanf:"secret" validate:"omitempty,min=16"`
	Issuer string        `koanf:"issuer"`
	Leeway time.Duration `koanf:"leeway" validate:"gte=0"`
	// TTL só é usado por quem emite tokens (login de demonstração).
	TTL time.Duration `koanf:"ttl" validate:"gt=0"`
}

type RateLimit struct {
	Enabled      bool           `koanf:"enabled"`
	Window       time.Duration  `koanf:"window" validate:"gt=0"`
	AuthPatterns []string       `koanf:"auth_patterns"`
	AuthMax      int            `koanf:"auth_max" validate:"min=1"`
	RoleMax      map[string]int `koanf:"role_max"`
	UserDefault  int            `koanf:"user_default" validate:"min=1"`
	DefaultMax   int            `koanf:"default_max" validate:"min=1"`
	KeyHeader    string         `koanf:"key_header"`
	Prefix       string         `koanf:"prefix"`
	Timeout      time.Duration  `koanf:"timeout"`
	Stats        RateStats      `koanf:"stats"`
}

type RateStats struct {
	Enabled   bool          `koanf:"enabled"`
	Prefix    string        `koanf:"prefix"`
	TTL       time.Duration `koanf:"ttl"`
	Bucket    string        `koanf:"bucket" validate:"oneof=minute none"`
	TrackKeys bool          `koanf:"track_keys"`
}

type Concurrency struct {
	Max            int           `koanf:"max" validate:"min=0"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout" validate:"gte=0"`
}

type Cache struct {
	Enabled           bool          `koanf:"enabled"`
	Strategy          string        `koanf:"strategy" validate:"oneof=shared personalized"`
	TTL               time.Duration `koanf:"ttl" validate:"gt=0"`
	ETag              bool          `koanf:"etag"`
	SingleFlight      bool          `koanf:"single_flight"`
	InvalidateOnWrite bool          `koanf:"invalidate_on_write"`
	ResourceDepth     int           `koanf:"resource_depth" validate:"min=0"`
	ExcludedPrefixes  []string      `koanf:"excluded_prefixes"`
	MaxEntries        int           `koanf:"max_entries" validate:"min=1"`
	Timeout           time.Duration `koanf:"timeout"`
}

type Sanitize struct {
	Enabled        bool     `koanf:"enabled"`
	SkipFields     []string `koanf:"skip_fields"`
	MaxUploadBytes int64    `koanf:"max_upload_bytes" validate:"gt=0"`
	MaxBodyBytes   int64    `koanf:"max_body_bytes" validate:"gt=0"`
}

type Observability struct {
	SlowThreshold time.Duration `koanf:"slow_threshold" validate:"gt=0"`
	ExcludedPaths []string      `koanf:"excluded_paths"`
	MaxBodyLog    int           `koanf:"max_body_log"`
	SensitiveKeys []string      `koanf:"sensitive_keys"`
	MaxString     int           `koanf:"max_string" validate:"min=0"`
	Namespace     string        `koanf:"namespace" validate:"required"`
	MetricsPrefix string        `koanf:"metrics_prefix"`
	SampleSize    int           `koanf:"sample_size" validate:"min=1"`
}

// Security.Headers é aplicado sobre os cabeçalhos padrão; valor vazio remove o cabeçalho.
type Security struct {
	Headers map[string]string `koanf:"headers"`
}

type CORS struct {
	AllowedOrigins   []string      `koanf:"allowed_origins"`
	AllowedMethods   []string      `koanf:"allowed_methods"`
	AllowedHeaders   []string      `koanf:"allowed_headers"`
	ExposedHeaders   []string      `koanf:"exposed_headers"`
	AllowCredentials bool          `koanf:"allow_credentials"`
	MaxAge           time.Duration `koanf:"max_age" validate:"gte=0"`
}

type Tracing struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name" validate:"required_if=Enabled true"`
}

type Pipeline struct {
	Order []string `koanf:"order" validate:"min=1,dive,oneof=recover observability tracing security cors concurrency sanitize authenticate ratelimit"`
}

// Route descreve uma rota protegida. Roles aceita "admin|teacher" (OR).
type Route struct {
	Pattern    string   `koanf:"pattern" validate:"required,startswith=/"`
	Methods    []string `koanf:"methods" validate:"dive,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS"`
	Auth       bool     `koanf:"auth"`
	Roles      string   `koanf:"roles"`
	Permission string   `koanf:"permission"`
	Cache      bool     `koanf:"cache"`
}

// Protected indica se a rota exige autenticação (explícita ou implicada por papel/permissão).
func (r Route) Protected() bool {
	return r.Auth || strings.TrimSpace(r.Roles) != "" || strings.TrimSpace(r.Permission) != ""
}

// DefaultOrder é a ordem global dos estágios, do mais externo para o mais interno.
var DefaultOrder = []string{
	"recover",
	"observability",
	"security",
	"cors",
	"concurrency",
	"sanitize",
	"authenticate",
	"ratelimit",
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":                ":8080",
		"server.read_header_timeout": 10 * time.Second,
		"server.read_timeout":        30 * time.Second,
		"server.write_timeout":       30 * time.Second,
		"server.idle_timeout":        90 * time.Second,
		"server.shutdown_timeout":    10 * time.Second,

		"redis.op_timeout": 50 * time.Millisecond,

		"log.level": "info",

		"jwt.leeway": 30 * time.Second,
		"jwt.ttl":    time.Hour,

		"ratelimit.enabled":      true,
		"ratelimit.window":       time.Minute,
		"ratelimit.auth_max":     10,
		"ratelimit.user_default": 120,
		"ratelimit.default_max":  60,
		"ratelimit.prefix":       "ratelimit",
		"ratelimit.timeout":      50 * time.Millisecond,
		"ratelimit.stats.prefix": "ratelimit:stats",
		"ratelimit.stats.ttl":    24 * time.Hour,
		"ratelimit.stats.bucket": "minute",

		"concurrency.max": 100,

		"cache.enabled":     true,
		"cache.strategy":    "shared",
		"cache.ttl":         5 * time.Minute,
		"cache.max_entries": 10000,
		"cache.timeout":     100 * time.Millisecond,

		"sanitize.enabled":          true,
		"sanitize.max_upload_bytes": int64(5 << 20),
		"sanitize.max_body_bytes":   int64(10 << 20),

		"observability.slow_threshold": 200 * time.Millisecond,
		"observability.max_body_log":   64 << 10,
		"observability.max_string":     1000,
		"observability.namespace":      "pipeline",
		"observability.metrics_prefix": "metrics",
		"observability.sample_size":    1000,

		"tracing.service_name": "middleware-pipeline",

		"pipeline.order": DefaultOrder,
	}
}

// Load lê .env (se houver), o YAML de PIPELINE_CONFIG e o ambiente, nessa ordem de precedência crescente.
func Load() (*Config, error) {
	// .env é opcional
	_ = godotenv.Load()

	path := os.Getenv(EnvFile)
	if path == "" {
		path = defaultFile
	}
	return LoadFile(path)
}

// LoadFile aplica defaults, o YAML em path (ausente é aceito) e o ambiente.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// arquivo ausente é aceito
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	for key, v := range defaults() {
		if !k.Exists(key) {
			_ = k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checa as regras declaradas nas tags. O erro sempre satisfaz errors.Is(err, ErrInvalidConfig).
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	return nil
}
