package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"festival-mileage/internal/domain"
	"festival-mileage/internal/observability"
	"go.uber.org/zap"
)

type errorPayload struct {
	Message string `json:"message"`
}

var badRequestErrors = []error{
	domain.ErrInvalidStudent,
	domain.ErrInvalidStudentID,
	domain.ErrInvalidMultiplier,
	domain.ErrNoQuiz,
	domain.ErrInvalidAnswer,
	domain.ErrInvalidRound,
	domain.ErrInvalidCandidates,
	domain.ErrInvalidChoice,
	errBadRequest,
}

var conflictErrors = []error{
	domain.ErrAmbiguousBooth,
	domain.ErrAmbiguousStudent,
	domain.ErrInsufficientBalance,
	domain.ErrMultiplierAlreadySet,
	domain.ErrFeatureDisabled,
	domain.ErrRoundInProgress,
	domain.ErrRoundNotRunning,
	domain.ErrRoundClosed,
	domain.ErrSemifinalIncomplete,
}

var notFoundErrors = []error{
	domain.ErrUserNotFound,
	domain.ErrNotWhitelisted,
	domain.ErrInvalidReference,
}

var errBadRequest = errors.New("malformed request")

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case matchesAny(err, badRequestErrors):
		return http.StatusBadRequest
	// Conflicts are checked before not-found: an ambiguous booth also wraps
	// the invalid reference error.
	case matchesAny(err, conflictErrors):
		return http.StatusConflict
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		observability.CaptureErr(err)
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
