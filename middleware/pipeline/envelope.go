package pipeline

import (
	"encoding/json"
	"net/http"
	"time"
)

// Códigos do envelope de erro.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeFileSizeExceeded   = "FILE_SIZE_EXCEEDED"
	CodeServerError        = "SERVER_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeBadGateway         = "BAD_GATEWAY"
	CodeValidationError    = "VALIDATION_ERROR"
)

type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ErrorEnvelope struct {
	Success   bool      `json:"success"`
	Error     ErrorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
}

type SuccessEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// now é sobrescrito em testes.
var now = time.Now

// WriteError escreve o envelope padrão de erro usado por todos os estágios que negam.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorEnvelope{
		Success:   false,
		Error:     ErrorBody{Message: message, Code: code},
		Timestamp: now().UTC().Format(time.RFC3339),
	})
}

func WriteSuccess(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, SuccessEnvelope{Success: true, Data: data, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Del("Content-Length")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
