package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blagoySimandov/careerpilot/internal/account"
	"github.com/blagoySimandov/careerpilot/internal/apperr"
	"github.com/blagoySimandov/careerpilot/internal/logging"
	"github.com/blagoySimandov/careerpilot/internal/models"
	"github.com/rs/zerolog/log"
)

const internalServerError = "internal server error"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type QuotaErrorResponse struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	UsageCount int64       `json:"usageCount"`
	Limit      int64       `json:"limit"`
	Tier       models.Tier `json:"tier"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps err onto the error taxonomy. Internal details stay in the wide event.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var quotaErr *account.QuotaExceededError
	if errors.As(err, &quotaErr) {
		logging.EnrichError(r.Context(), err, apperr.KindQuotaExceeded.String())
		logging.EnrichUsage(r.Context(), string(quotaErr.Tier), quotaErr.UsageCount)
		writeJSON(w, http.StatusForbidden, QuotaErrorResponse{
			Code:       apperr.KindQuotaExceeded.String(),
			Message:    "Generation limit reached for your plan",
			UsageCount: quotaErr.UsageCount,
			Limit:      quotaErr.Limit,
			Tier:       quotaErr.Tier,
		})
		return
	}

	kind := apperr.KindOf(err)
	logging.EnrichError(r.Context(), err, kind.String())

	message := internalServerError
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.PublicMessage()
	}
	writeJSON(w, kind.HTTPStatus(), ErrorResponse{Code: kind.String(), Message: message})
}

// decodeJSON reads a JSON body of at most limit bytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}
