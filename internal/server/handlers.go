package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"forecastdash/internal/api"
	"forecastdash/internal/dashboard"
	"forecastdash/internal/series"
)

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// StateResponse is the full dashboard snapshot plus derived badges.
type StateResponse struct {
	dashboard.ViewState
	Items  []string                        `json:"items"`
	Badges map[series.Measure]series.Badge `json:"badges"`
}

// SeriesResponse carries one measure's render-ready band chart.
type SeriesResponse struct {
	Selection api.SelectionKey   `json:"selection"`
	Series    series.ChartSeries `json:"series"`
}

// SelectionRequest is a partial selection update; omitted fields keep
// their current value.
type SelectionRequest struct {
	ItemID      string `json:"item_id"`
	HorizonDays int    `json:"horizon_days"`
	Model       string `json:"model"`
}

// SelectionResponse acknowledges an accepted selection change.
type SelectionResponse struct {
	Selection  api.SelectionKey `json:"selection"`
	Generation uint64           `json:"generation"`
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.ItemsResponse{Items: s.store.Items()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.store.State()
	writeJSON(w, http.StatusOK, StateResponse{
		ViewState: snap,
		Items:     s.store.Items(),
		Badges:    series.Badges(snap.Metrics),
	})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("measure")
	if raw == "" {
		raw = string(series.MeasureDemand)
	}
	measure, err := series.ParseMeasure(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_measure", err.Error())
		return
	}

	snap := s.store.State()
	var points []api.ForecastPoint
	if snap.Forecast != nil {
		points = snap.Forecast.Points
	}

	writeJSON(w, http.StatusOK, SeriesResponse{
		Selection: snap.Key,
		Series:    series.BuildBandSeries(points, measure),
	})
}

// handleSelection merges the partial update over the current selection and
// kicks off a refresh. The response is an acknowledgement; clients observe
// the outcome through /api/state. Concurrent updates race safely: the last
// accepted key's generation wins.
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "Body must be a JSON selection object")
		return
	}

	key := s.store.State().Key
	if req.ItemID != "" {
		key.ItemID = req.ItemID
	}
	if req.HorizonDays != 0 {
		key.HorizonDays = req.HorizonDays
	}
	if req.Model != "" {
		key.Model = req.Model
	}

	if err := key.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_selection", err.Error())
		return
	}

	gen := s.store.Refresh(s.refreshCtx, key)
	writeJSON(w, http.StatusAccepted, SelectionResponse{Selection: key, Generation: gen})
}

// handleHealthz reports this server's health; the upstream's reachability
// rides along as a field rather than failing the probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	upstream := "ok"
	if err := s.client.Health(ctx); err != nil {
		upstream = "unreachable"
		log.Warn().Err(err).Msg("upstream health probe failed")
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "upstream": upstream})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestIDFrom(r),
		Timestamp: time.Now().UTC(),
	})
}
