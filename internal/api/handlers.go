package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/monitoring"
)

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req model.CalculationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.calc.Calculate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSmartCalculate(w http.ResponseWriter, r *http.Request) {
	var req model.SmartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.calc.SmartCalculate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleParseRoute(w http.ResponseWriter, r *http.Request) {
	var req model.ParseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.calc.Parse(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "geojson" {
		body, err := s.cities.MarshalGeoJSON()
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		w.Write(body) //nolint:errcheck
		return
	}

	cities := s.cities.Cities()
	writeJSON(w, http.StatusOK, map[string]any{
		"cities": cities,
		"count":  len(cities),
	})
}

func (s *Server) handleEmissionFactors(w http.ResponseWriter, r *http.Request) {
	factors, err := s.factors.List(r.Context())
	if err != nil {
		zap.L().Error("api: list emission factors",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to load emission factors"})
		return
	}
	if factors == nil {
		factors = []model.EmissionFactor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"factors": factors})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Flush(r.Context()); err != nil {
		zap.L().Error("api: clear cache",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to clear cache"})
		return
	}
	zap.L().Info("api: cache cleared")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Cache cleared",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	body := make(map[string]any, len(report.Dependencies)+2)
	for name, status := range report.Dependencies {
		body[name] = status
	}
	body["status"] = report.Status
	body["checked_at"] = report.CheckedAt

	status := http.StatusOK
	if report.Status == monitoring.StatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

// decodeBody reads a JSON request body into dst. On failure it writes a 400
// and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		zap.L().Debug("api: invalid request body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
