package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
)

// TopicCount is one entry of the dashboard's topic ranking.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// Dashboard aggregates calls and their post-call analyses.
type Dashboard struct {
	TotalCalls            int            `json:"total_calls"`
	CompletedCalls        int            `json:"completed_calls"`
	AvgDurationSeconds    float64        `json:"avg_duration_seconds"`
	SentimentDistribution map[string]int `json:"sentiment_distribution"`
	AvgQualityScore       float64        `json:"avg_quality_score"`
	GoalAchievementRate   float64        `json:"goal_achievement_rate"` // percent of analyzed calls
	EmergencyCalls        int            `json:"emergency_calls"`
	RecentCalls7Days      int            `json:"recent_calls_7_days"`
	TopTopics             []TopicCount   `json:"top_topics"`
}

// TrendPoint is one analyzed call on the sentiment trend.
type TrendPoint struct {
	Date         time.Time `json:"date"`
	Sentiment    *string   `json:"sentiment"`
	QualityScore *float64  `json:"quality_score"`
}

const topTopicsLimit = 5

// Dashboard computes the dispatcher dashboard as of now.
func (s *Store) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	d := Dashboard{SentimentDistribution: emptySentiments(), TopTopics: []TopicCount{}}
	var (
		analyzed, goals int
		avgQuality      float64
	)
	err := s.db.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = $1),
			coalesce(avg(duration_sec), 0)::float8,
			count(*) FILTER (WHERE post_call_analysis IS NOT NULL),
			coalesce(avg((post_call_analysis->>'quality_score')::float8)
				FILTER (WHERE jsonb_typeof(post_call_analysis->'quality_score') = 'number'), 0)::float8,
			count(*) FILTER (WHERE post_call_analysis->'goal_achieved' = 'true'::jsonb),
			count(*) FILTER (WHERE structured_results @> '{"emergency": true}'::jsonb),
			count(*) FILTER (WHERE created_at >= $2)
		FROM calls
	`, string(dispatch.CallCompleted), now.Add(-7*24*time.Hour)).Scan(
		&d.TotalCalls, &d.CompletedCalls, &d.AvgDurationSeconds,
		&analyzed, &avgQuality, &goals, &d.EmergencyCalls, &d.RecentCalls7Days,
	)
	if err != nil {
		return nil, fmt.Errorf("dashboard totals: %w", err)
	}
	d.AvgDurationSeconds = round1(d.AvgDurationSeconds)
	d.AvgQualityScore = round1(avgQuality)
	d.GoalAchievementRate = percent(goals, analyzed)

	rows, err := s.db.Query(ctx, `
		SELECT coalesce(post_call_analysis->>'sentiment', $1), count(*)
		FROM calls
		WHERE post_call_analysis IS NOT NULL
		GROUP BY 1
	`, dispatch.SentimentUnknown)
	if err != nil {
		return nil, fmt.Errorf("dashboard sentiment: %w", err)
	}
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			rows.Close()
			return nil, err
		}
		d.SentimentDistribution[label] += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(ctx, `
		SELECT topic, count(*)
		FROM calls,
		     jsonb_array_elements_text(post_call_analysis->'key_topics') AS topic
		WHERE jsonb_typeof(post_call_analysis->'key_topics') = 'array'
		GROUP BY topic
		ORDER BY count(*) DESC, topic
		LIMIT $1
	`, topTopicsLimit)
	if err != nil {
		return nil, fmt.Errorf("dashboard topics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tc TopicCount
		if err := rows.Scan(&tc.Topic, &tc.Count); err != nil {
			return nil, err
		}
		d.TopTopics = append(d.TopTopics, tc)
	}
	return &d, rows.Err()
}

// SentimentTrend lists analyzed calls created since since, oldest first.
func (s *Store) SentimentTrend(ctx context.Context, since time.Time) ([]TrendPoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT created_at,
		       post_call_analysis->>'sentiment',
		       CASE WHEN jsonb_typeof(post_call_analysis->'quality_score') = 'number'
		            THEN (post_call_analysis->>'quality_score')::float8 END
		FROM calls
		WHERE created_at >= $1 AND post_call_analysis IS NOT NULL
		ORDER BY created_at
	`, since)
	if err != nil {
		return nil, fmt.Errorf("sentiment trend: %w", err)
	}
	defer rows.Close()

	out := []TrendPoint{}
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Date, &p.Sentiment, &p.QualityScore); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func emptySentiments() map[string]int {
	return map[string]int{
		dispatch.SentimentPositive: 0,
		dispatch.SentimentNegative: 0,
		dispatch.SentimentNeutral:  0,
		dispatch.SentimentUnknown:  0,
	}
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round1(float64(part) / float64(whole) * 100)
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
