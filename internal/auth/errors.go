package auth

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/blagoySimandov/careerpilot/internal/apperr"
	"github.com/rs/zerolog/log"
)

const bearerRealm = "careerpilot"

// rejection has the same shape as the API's error body.
type rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// reject writes a 401 with the RFC 6750 challenge. tokenErr is the challenge's
// error code and is empty when no bearer token was presented.
func reject(w http.ResponseWriter, err *apperr.Error, tokenErr string) {
	challenge := fmt.Sprintf("Bearer realm=%q", bearerRealm)
	if tokenErr != "" {
		challenge += fmt.Sprintf(", error=%q", tokenErr)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Kind.HTTPStatus())
	if encErr := json.NewEncoder(w).Encode(rejection{
		Code:    err.Kind.String(),
		Message: err.PublicMessage(),
	}); encErr != nil {
		log.Error().Err(encErr).Msg("Failed to write auth rejection")
	}
}
