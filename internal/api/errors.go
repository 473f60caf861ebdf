package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/carbon-cli/internal/calc"
	"github.com/sells-group/carbon-cli/internal/extract"
	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/resilience"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error      string              `json:"error"`
	Details    map[string][]string `json:"details,omitempty"`
	Parsed     *model.Extraction   `json:"parsed,omitempty"`
	Suggestion string              `json:"suggestion,omitempty"`
}

// statusFor maps an engine error to its HTTP status and response body.
// Caller mistakes are 400s; dependency faults never echo internal detail.
func statusFor(err error) (int, errorBody) {
	var (
		verr *calc.ValidationError
		cerr *calc.UnknownCityError
		xerr *calc.ExtractionIncompleteError
		uerr *extract.UpstreamError
	)

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Error: verr.Error(), Details: verr.Fields}
	case errors.As(err, &cerr):
		return http.StatusBadRequest, errorBody{Error: cerr.Error(), Parsed: cerr.Parsed, Suggestion: cerr.Suggestion()}
	case errors.Is(err, calc.ErrUnknownTransportMode):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	case errors.As(err, &xerr):
		parsed := xerr.Parsed
		return http.StatusBadRequest, errorBody{Error: xerr.Error(), Parsed: &parsed}
	case errors.Is(err, extract.ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{Error: "Too many requests"}
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, calc.ErrExtractionUnavailable):
		return http.StatusServiceUnavailable, errorBody{Error: "Extraction service unavailable"}
	case errors.As(err, &uerr):
		return http.StatusBadGateway, errorBody{Error: "Extraction service error"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "Internal error"}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	log := zap.L().With(
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	)
	if status >= http.StatusInternalServerError {
		log.Error("api: request failed")
	} else {
		log.Debug("api: request rejected")
	}
	writeJSON(w, status, body)
}
