package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/permitauth/internal/common"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// respondServiceError maps the error taxonomy to a status code. The code
// field is the taxonomy label; internal errors are logged, not echoed.
func (s *HTTPServer) respondServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	reason := common.Reason(err)
	switch reason {
	case "invalid_credentials", "invalid_token", "expired", "revoked", "theft_detected":
		respondError(w, http.StatusUnauthorized, reason, err.Error())
	case "rate_limited":
		var rl *common.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
		}
		respondError(w, http.StatusTooManyRequests, reason, err.Error())
	case "validation":
		respondError(w, http.StatusBadRequest, reason, err.Error())
	case "already_exists":
		respondError(w, http.StatusConflict, reason, err.Error())
	case "not_found":
		respondError(w, http.StatusNotFound, reason, err.Error())
	default:
		s.logger.Error(ctx, "request failed", "err", err)
		respondError(w, http.StatusInternalServerError, reason, "internal error")
	}
}
