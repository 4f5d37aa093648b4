package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
	"github.com/lukasbauer/dispatchvoice/internal/store"
)

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	if rec := env.do(t, http.MethodGet, "/api/analytics/dashboard", "", false); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/analytics/dashboard", "", true); rec.Code != http.StatusInternalServerError {
		t.Errorf("store failure status = %d", rec.Code)
	}

	env.store.dashboard = &store.Dashboard{
		TotalCalls:            12,
		CompletedCalls:        9,
		SentimentDistribution: map[string]int{"positive": 5, "negative": 1, "neutral": 3, "unknown": 0},
		GoalAchievementRate:   77.8,
		EmergencyCalls:        1,
		TopTopics:             []store.TopicCount{{Topic: "delay", Count: 4}},
	}
	rec := env.do(t, http.MethodGet, "/api/analytics/dashboard", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["total_calls"] != float64(12) || got["goal_achievement_rate"] != 77.8 || got["emergency_calls"] != float64(1) {
		t.Errorf("dashboard = %v", got)
	}
	if _, ok := got["sentiment_distribution"].(map[string]any); !ok {
		t.Errorf("sentiment_distribution = %v", got["sentiment_distribution"])
	}
}

func TestSentimentTrend(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	positive := dispatch.SentimentPositive
	score := 8.5

	tests := []struct {
		name      string
		query     string
		want      int
		wantSince time.Time
	}{
		{"default window", "", http.StatusOK, now.AddDate(0, 0, -30)},
		{"custom window", "?days=7", http.StatusOK, now.AddDate(0, 0, -7)},
		{"zero days", "?days=0", http.StatusBadRequest, time.Time{}},
		{"too many days", "?days=400", http.StatusBadRequest, time.Time{}},
		{"not a number", "?days=week", http.StatusBadRequest, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, RouterConfig{})
			env.router.now = func() time.Time { return now }
			env.store.trend = []store.TrendPoint{{Date: now.Add(-time.Hour), Sentiment: &positive, QualityScore: &score}}

			rec := env.do(t, http.MethodGet, "/api/analytics/sentiment-trend"+tt.query, "", true)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			if !env.store.trendSince.Equal(tt.wantSince) {
				t.Errorf("since = %v, want %v", env.store.trendSince, tt.wantSince)
			}
			var body struct {
				TrendData []store.TrendPoint `json:"trend_data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if len(body.TrendData) != 1 || *body.TrendData[0].Sentiment != "positive" || *body.TrendData[0].QualityScore != 8.5 {
				t.Errorf("trend = %+v", body.TrendData)
			}
		})
	}
}

func TestUpdateAgent(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	rec := env.do(t, http.MethodPut, "/api/agents/agent-2", `{"system_prompt":"Back in service.","is_active":true}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var agent dispatch.AgentConfig
	_ = json.Unmarshal(rec.Body.Bytes(), &agent)
	if agent.SystemPrompt != "Back in service." || !agent.Active || agent.Name != "Old" {
		t.Errorf("agent = %+v", agent)
	}

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown agent", "/api/agents/agent-404", `{"name":"x"}`, http.StatusNotFound},
		{"blank name", "/api/agents/agent-1", `{"name":"  "}`, http.StatusBadRequest},
		{"blank prompt", "/api/agents/agent-1", `{"system_prompt":""}`, http.StatusBadRequest},
		{"invalid json", "/api/agents/agent-1", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPut, tt.path, tt.body, true); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAvailableLLMs(t *testing.T) {
	env := newTestEnv(t, RouterConfig{DefaultProvider: "openai"})

	rec := env.do(t, http.MethodGet, "/api/settings/llms/available", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Providers []string `json:"providers"`
		Default   string   `json:"default"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Providers) != 2 || got.Providers[0] != "groq" || got.Default != "openai" {
		t.Errorf("available = %+v", got)
	}
}
