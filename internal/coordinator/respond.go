package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"fleetdeploy/internal/github"
	"fleetdeploy/pkg/models"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, models.ErrorResponse{Detail: detail})
}

// writeError maps an error kind onto its HTTP status. Unclassified errors
// are logged and reported as 500 without internals.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		writeDetail(w, status, "internal server error")
		return
	}
	writeDetail(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, github.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, github.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, github.ErrBadStatus):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON body into v, reporting malformed input as
// models.ErrInvalidArgument
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", models.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: malformed JSON body: %v", models.ErrInvalidArgument, err)
	}
	return nil
}
