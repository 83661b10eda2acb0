package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"wisp/internal/auth"
	"wisp/internal/core"
	"wisp/internal/log"
)

type errorResponse struct {
	Error      string `json:"error"`
	MovementID int64  `json:"movement_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// respondError maps domain errors to HTTP status codes. A recompute
// failure names the movement that could not be refreshed.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var recomputeErr *core.RecomputeError
	switch {
	case errors.As(err, &recomputeErr):
		resp.MovementID = recomputeErr.MovementID
		if errors.Is(err, core.ErrMissingSalaryData) ||
			errors.Is(err, core.ErrInvalidState) ||
			errors.Is(err, core.ErrUnsupportedDistributionType) {
			status = http.StatusUnprocessableEntity
		}
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrUsernameTaken):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidState),
		errors.Is(err, core.ErrMissingSalaryData),
		errors.Is(err, core.ErrUnsupportedDistributionType):
		status = http.StatusUnprocessableEntity
	}

	if status >= 500 {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err.Error(),
			log.FieldPath, r.URL.Path)
	}

	respondJSON(w, status, resp)
}

func respondBadRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// pathID parses the {id} path segment of a request.
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func queryID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
}
