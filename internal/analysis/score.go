package analysis

import (
	"math"
	"strings"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
)

// Fallback text when no summary can be generated.
const SummaryFallback = "Call completed."

const (
	maxSummaryLen = 200
	maxTopics     = 5
)

var (
	positiveWords = []string{"thank", "great", "good", "perfect", "sure", "yes", "okay", "fine"}
	negativeWords = []string{"problem", "issue", "late", "delay", "stuck", "emergency", "accident"}
)

// topicTable is ordered; fallback topics come out in this order.
var topicTable = []struct {
	topic    string
	keywords []string
}{
	{"delay", []string{"delay", "late", "behind"}},
	{"traffic", []string{"traffic", "congestion", "jam"}},
	{"location", []string{"location", "where", "mile marker"}},
	{"eta", []string{"eta", "arrive", "time"}},
	{"emergency", []string{"emergency", "accident", "breakdown"}},
	{"delivery", []string{"deliver", "unload", "dock"}},
	{"weather", []string{"weather", "rain", "snow"}},
}

// Sentiment is a label with its confidence in [0,1].
type Sentiment struct {
	Label      string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// KeywordSentiment tallies positive and negative keywords; ties are neutral.
func KeywordSentiment(text string) Sentiment {
	lower := strings.ToLower(text)
	pos, neg := countPresent(lower, positiveWords), countPresent(lower, negativeWords)

	switch {
	case pos > neg:
		return Sentiment{Label: dispatch.SentimentPositive, Confidence: 0.6}
	case neg > pos:
		return Sentiment{Label: dispatch.SentimentNegative, Confidence: 0.6}
	default:
		return Sentiment{Label: dispatch.SentimentNeutral, Confidence: 0.5}
	}
}

func countPresent(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

// KeywordTopics returns up to five topics from the fixed keyword table.
func KeywordTopics(text string) []string {
	lower := strings.ToLower(text)
	topics := []string{}
	for _, row := range topicTable {
		if countPresent(lower, row.keywords) > 0 {
			topics = append(topics, row.topic)
		}
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}

// QualityScore rates a call from 0 to 10. turns is the length of the
// conversation history; zero means no history and skips the length
// adjustment.
func QualityScore(facts dispatch.StructuredResult, sentiment string, turns int) float64 {
	score := 5.0

	if facts.CapturedStatus() != "" {
		score += 2.0
	}
	if facts.CapturedETA() != "" {
		score += 1.0
	}

	switch sentiment {
	case dispatch.SentimentPositive:
		score += 1.5
	case dispatch.SentimentNegative:
		score -= 1.0
	}

	if turns > 0 {
		switch {
		case turns >= 5 && turns <= 10:
			score += 1.0
		case turns < 3:
			score -= 0.5
		case turns > 15:
			score -= 0.5
		}
	}

	if facts.IsEmergency() {
		score += 0.5
	}

	score = math.Round(score*10) / 10
	return math.Max(0, math.Min(10, score))
}

// GoalAchieved is true once a status or an emergency type was captured.
func GoalAchieved(facts dispatch.StructuredResult) bool {
	return facts.CapturedStatus() != "" || facts.EmergencyType() != ""
}

// Cooperation grades how engaged the driver was.
func Cooperation(turns []dispatch.Turn, sentiment string) string {
	if len(turns) == 0 {
		return dispatch.CooperationUnknown
	}
	driverTurns := dispatch.CountRole(turns, dispatch.RoleDriver)
	switch {
	case driverTurns < 2:
		return dispatch.CooperationLow
	case sentiment == dispatch.SentimentPositive && driverTurns >= 3:
		return dispatch.CooperationHigh
	case sentiment == dispatch.SentimentNegative:
		return dispatch.CooperationLow
	default:
		return dispatch.CooperationMedium
	}
}

// TruncateSummary caps s at 200 characters, ending in an ellipsis when cut.
func TruncateSummary(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxSummaryLen {
		return s
	}
	return string(r[:maxSummaryLen-3]) + "..."
}
