package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/quantumauth-io/credchain/analytics"
)

type trackRequest struct {
	EventType     any    `json:"event_type"`
	EventData     any    `json:"event_data"`
	WalletAddress string `json:"wallet_address"`
}

type analyticsResponse struct {
	Summary        analytics.Summary `json:"summary"`
	DailyAnalytics []analytics.Daily `json:"dailyAnalytics"`
}

func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	// unparsable or missing falls back to the default window
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	daily, err := s.analytics.Daily(r.Context(), days)
	if err != nil {
		s.internalError(w, r, "daily analytics", err, "Failed to fetch analytics")
		return
	}
	if daily == nil {
		daily = []analytics.Daily{}
	}
	writeData(w, analyticsResponse{
		Summary:        s.analytics.Summary(r.Context()),
		DailyAnalytics: daily,
	})
}

func (s *Server) handlePostAnalytics(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		writeError(w, http.StatusBadRequest, "Empty request body")
		return
	}

	var req trackRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	eventType, ok := req.EventType.(string)
	if !ok || strings.TrimSpace(eventType) == "" {
		writeError(w, http.StatusBadRequest, analytics.ErrTypeRequired.Error())
		return
	}

	_, err = s.analytics.Track(r.Context(), analytics.Event{
		Type:          eventType,
		Data:          eventData(req.EventData),
		WalletAddress: req.WalletAddress,
		UserAgent:     r.UserAgent(),
		IPAddress:     clientIP(r),
		URL:           r.Referer(),
	})
	if err != nil {
		s.internalError(w, r, "track event", err, "Failed to track event")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

// eventData keeps objects as-is and wraps any other JSON value.
func eventData(v any) map[string]any {
	switch d := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return d
	default:
		return map[string]any{"value": d}
	}
}
