package httpapi

import (
	"net/http"
	"strconv"
	"time"
)

const (
	defaultTrendDays = 30
	maxTrendDays     = 365
)

func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	d, err := r.store.Dashboard(req.Context(), r.now().UTC())
	if err != nil {
		captureError(req, err, "analytics: dashboard")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleSentimentTrend lists analyzed calls from the last ?days=N days.
func (r *Router) handleSentimentTrend(w http.ResponseWriter, req *http.Request) {
	days := defaultTrendDays
	if v := req.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxTrendDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}

	since := r.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	points, err := r.store.SentimentTrend(req.Context(), since)
	if err != nil {
		captureError(req, err, "analytics: sentiment trend")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "trend_data": points})
}
