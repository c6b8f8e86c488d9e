package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportbot/internal/domain"
)

// ErrorCode is the machine-readable error code in ErrorResponse.
type ErrorCode string

// Error codes returned by the HTTP surface.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeInvalidQuery     ErrorCode = "invalid_query"
	CodeIndexNotFound    ErrorCode = "index_not_found"
	CodeIndexUnavailable ErrorCode = "index_unavailable"
	CodeEmbeddingError   ErrorCode = "embedding_provider_error"
	CodeTimeout          ErrorCode = "timeout"
	CodeCancelled        ErrorCode = "cancelled"
	CodeInternal         ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeInvalidQuery),
	sentinelHandler(domain.ErrIndexNotFound, http.StatusNotFound, CodeIndexNotFound),
	sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingError),
	sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, CodeIndexUnavailable),
	sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
	sentinelHandler(context.Canceled, http.StatusServiceUnavailable, CodeCancelled),
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	var nf *domain.IndexNotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrIndexNotFound,
		domain.ErrEmbeddingProviderError,
		domain.ErrIndexUnavailable,
		context.DeadlineExceeded,
		context.Canceled,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, log *zap.Logger, err error) {
	for _, h := range errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
