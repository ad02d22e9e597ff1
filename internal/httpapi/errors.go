package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"llmgateway/internal/domain"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError emits the uniform {error:{code,message}} envelope (A5).
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// writeGatewayError unwraps a *domain.GatewayError if present, otherwise
// falls back to internal_error.
func writeGatewayError(w http.ResponseWriter, err error) {
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		writeError(w, gwErr.HTTPStatus, gwErr.Code, gwErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
