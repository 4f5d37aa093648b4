// Package analysis is the post-call pipeline: it settles a finished call's
// structured facts and derives sentiment, quality, summary, topics, goal and
// cooperation from the conversation.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/dispatchvoice/internal/actions"
	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
	"github.com/lukasbauer/dispatchvoice/internal/extract"
	"github.com/lukasbauer/dispatchvoice/internal/llm"
)

// Extraction methods recorded under extraction_method.
const (
	MethodFunctionCall = "llm_function_call"
	MethodText         = "llm_text"
	MethodHeuristic    = extract.Method
)

// Generator is the model capability the analyzer needs.
type Generator interface {
	Generate(ctx context.Context, history []llm.Message, systemPrompt string, functions []llm.FunctionDecl, primary string) (*llm.Result, error)
}

// Input describes one finished call.
type Input struct {
	CallID      string
	Transcript  string                    // platform transcript, may be empty
	History     []dispatch.Turn           // session history, may be empty
	Facts       dispatch.StructuredResult // facts captured during the call
	AgentPrompt string
	Scenario    string
	Provider    string // primary model provider
}

// Turns returns the session history, or the turns recovered from the
// platform transcript when the session left none.
func (in Input) Turns() []dispatch.Turn {
	if len(in.History) > 0 {
		return in.History
	}
	return dispatch.ParseTranscript(in.Transcript)
}

// Text returns the conversation as prompt text.
func (in Input) Text() string {
	if t := strings.TrimSpace(in.Transcript); t != "" {
		return t
	}
	return dispatch.FormatTranscript(in.History)
}

// Analyzer runs post-call extraction and analysis. A nil Generator skips
// every model step and uses the heuristics directly.
type Analyzer struct {
	gen  Generator
	exec *actions.Executor
	log  logrus.FieldLogger
	now  func() time.Time
}

func New(gen Generator, exec *actions.Executor, log logrus.FieldLogger) *Analyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if exec == nil {
		exec = actions.NewExecutor(log)
	}
	return &Analyzer{gen: gen, exec: exec, log: log, now: time.Now}
}

// Extract settles the call's structured facts. Facts captured live are
// authoritative; otherwise a model reads the transcript, and the keyword
// extractor runs when that yields nothing.
func (a *Analyzer) Extract(ctx context.Context, in Input) dispatch.StructuredResult {
	out := in.Facts.Clone()
	log := a.log.WithField("call_id", in.CallID)

	if in.Facts.HasUsableData() {
		out[dispatch.KeyDataSource] = dispatch.SourceRealtime
		log.Debug("analysis: realtime facts present, skipping extraction")
		return out
	}

	text := in.Text()
	if strings.TrimSpace(text) == "" {
		out[dispatch.KeyDataSource] = dispatch.SourceError
		out[dispatch.KeyExtractionError] = "empty transcript"
		log.Warn("analysis: nothing to extract from")
		return out
	}

	if a.gen != nil {
		method, err := a.extractWithModel(ctx, in, text, out)
		if err == nil {
			out[dispatch.KeyDataSource] = dispatch.SourcePostProcessing
			out[dispatch.KeyExtractionMethod] = method
			log.WithField("method", method).Info("analysis: facts extracted by model")
			return out
		}
		out[dispatch.KeyExtractionError] = err.Error()
		log.WithError(err).Warn("analysis: model extraction failed, using keyword extractor")
	}

	out.Merge(extract.Process(text, in.Scenario))
	out[dispatch.KeyDataSource] = dispatch.SourcePostProcessing
	out[dispatch.KeyExtractionMethod] = MethodHeuristic
	return out
}

func (a *Analyzer) extractWithModel(ctx context.Context, in Input, text string, out dispatch.StructuredResult) (string, error) {
	system := llm.ComposeSystemPrompt(in.AgentPrompt, llm.CallContext{}) + extractionSystemSuffix
	res, err := a.gen.Generate(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: extractionPrompt(text)}},
		system, llm.DispatchFunctions(), in.Provider)
	if err != nil {
		return "", err
	}

	if res.FunctionCall != nil {
		o := a.exec.Execute(res.FunctionCall, "", out, dispatch.SourcePostProcessing)
		if o.Applied {
			return MethodFunctionCall, nil
		}
	}

	payload, ok := scanObject(res.Content)
	if !ok {
		return "", fmt.Errorf("no structured payload in model reply")
	}

	// Some models write the function call out as text.
	if name, _ := payload["name"].(string); name != "" {
		for _, key := range []string{"arguments", "parameters"} {
			args, ok := payload[key].(map[string]any)
			if !ok {
				continue
			}
			raw, _ := json.Marshal(args)
			o := a.exec.Execute(&llm.FunctionCall{Name: name, Arguments: string(raw)}, "", out, dispatch.SourcePostProcessing)
			if o.Applied {
				return MethodText, nil
			}
		}
	}

	usable := 0
	for k, v := range payload {
		if dispatch.IsBookkeepingKey(k) || v == nil || v == "" {
			continue
		}
		out[k] = v
		usable++
	}
	if usable == 0 {
		return "", fmt.Errorf("model payload carried no facts")
	}
	return MethodText, nil
}

// scanObject finds the outermost JSON object embedded in s.
func scanObject(s string) (map[string]any, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &m); err != nil {
		return nil, false
	}
	return m, true
}
