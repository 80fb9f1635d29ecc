package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/iudanet/handsync/pkg/api"
)

// writeError отправляет ошибку в формате api.ErrorResponse,
// который разбирает HTTP адаптер клиента
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}
