package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
	"github.com/lukasbauer/dispatchvoice/internal/llm"
)

var topicArrayRe = regexp.MustCompile(`(?s)\[.*?\]`)

// Analyze derives the call's AnalysisResult. It never fails: each model step
// has a heuristic fallback, and a panic anywhere yields DefaultAnalysis.
func (a *Analyzer) Analyze(ctx context.Context, in Input, facts dispatch.StructuredResult) (res dispatch.AnalysisResult) {
	log := a.log.WithField("call_id", in.CallID)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("analysis panic: %v", r)
			log.WithError(err).Error("analysis: run failed")
			res = dispatch.DefaultAnalysis(err)
		}
	}()

	turns := in.Turns()
	text := in.Text()

	var (
		sentiment Sentiment
		summary   string
		topics    []string
	)

	var g errgroup.Group
	g.Go(guard(func() { sentiment = a.sentiment(ctx, in, text) }))
	g.Go(guard(func() { summary = a.summary(ctx, in, text, facts) }))
	g.Go(guard(func() { topics = a.topics(ctx, in, text) }))
	if err := g.Wait(); err != nil {
		panic(err)
	}

	res = dispatch.AnalysisResult{
		Sentiment:           sentiment.Label,
		SentimentConfidence: sentiment.Confidence,
		QualityScore:        QualityScore(facts, sentiment.Label, len(turns)),
		Summary:             summary,
		KeyTopics:           topics,
		GoalAchieved:        GoalAchieved(facts),
		CooperationLevel:    Cooperation(turns, sentiment.Label),
		AnalyzedAt:          a.now().UTC(),
	}

	log.WithFields(logrus.Fields{
		"sentiment": res.Sentiment,
		"quality":   res.QualityScore,
		"goal":      res.GoalAchieved,
	}).Info("analysis: call analyzed")
	return res
}

// guard turns a panic in a sub-task into an error so it reaches Analyze's
// recover instead of killing the process.
func guard(fn func()) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%v", r)
			}
		}()
		fn()
		return nil
	}
}

func (a *Analyzer) ask(ctx context.Context, in Input, system, prompt string) (string, error) {
	if a.gen == nil {
		return "", errors.New("no model configured")
	}
	out, err := a.gen.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, system, nil, in.Provider)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

func (a *Analyzer) sentiment(ctx context.Context, in Input, text string) Sentiment {
	content, err := a.ask(ctx, in, sentimentSystem, sentimentPrompt(text))
	if err == nil {
		if s, ok := parseSentiment(content); ok {
			return s
		}
		err = errors.New("unparseable sentiment reply")
	}
	a.log.WithField("call_id", in.CallID).WithError(err).Debug("analysis: keyword sentiment fallback")
	return KeywordSentiment(text)
}

func parseSentiment(content string) (Sentiment, bool) {
	obj, ok := scanObject(content)
	if !ok {
		return Sentiment{}, false
	}
	label, _ := obj["sentiment"].(string)
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case dispatch.SentimentPositive, dispatch.SentimentNegative, dispatch.SentimentNeutral:
	default:
		return Sentiment{}, false
	}
	conf := 0.5
	if c, ok := obj["confidence"].(float64); ok && !math.IsNaN(c) {
		conf = math.Max(0, math.Min(1, c))
	}
	return Sentiment{Label: label, Confidence: conf}, true
}

func (a *Analyzer) summary(ctx context.Context, in Input, text string, facts dispatch.StructuredResult) string {
	content, err := a.ask(ctx, in, summarySystem, summaryPrompt(text, factsForPrompt(facts)))
	if err != nil {
		a.log.WithField("call_id", in.CallID).WithError(err).Debug("analysis: summary fallback")
		return SummaryFallback
	}
	if s := TruncateSummary(content); s != "" {
		return s
	}
	return SummaryFallback
}

// factsForPrompt drops bookkeeping keys the model has no use for.
func factsForPrompt(facts dispatch.StructuredResult) map[string]any {
	out := make(map[string]any, len(facts))
	for k, v := range facts {
		if !dispatch.IsBookkeepingKey(k) {
			out[k] = v
		}
	}
	return out
}

func (a *Analyzer) topics(ctx context.Context, in Input, text string) []string {
	content, err := a.ask(ctx, in, topicsSystem, topicsPrompt(text))
	if err == nil {
		if t, ok := parseTopics(content); ok {
			return t
		}
		err = errors.New("unparseable topics reply")
	}
	a.log.WithField("call_id", in.CallID).WithError(err).Debug("analysis: keyword topics fallback")
	return KeywordTopics(text)
}

func parseTopics(content string) ([]string, bool) {
	m := topicArrayRe.FindString(content)
	if m == "" {
		return nil, false
	}
	var raw []string
	if err := json.Unmarshal([]byte(m), &raw); err != nil {
		return nil, false
	}
	topics := make([]string, 0, maxTopics)
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		topics = append(topics, t)
		if len(topics) == maxTopics {
			break
		}
	}
	return topics, len(topics) > 0
}
