package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Fixed completion parameters for live turns.
const (
	Temperature = 0.7
	MaxTokens   = 150
)

// ErrAllProvidersFailed is returned when the primary and its alternate both fail.
var ErrAllProvidersFailed = errors.New("llm: all providers failed")

// Result is the outcome of one orchestrated turn.
type Result struct {
	Content      string
	FunctionCall *FunctionCall
	ProviderUsed string
	FallbackUsed bool
	Usage        Usage
}

// Orchestrator runs a completion against a primary provider and fails over
// exactly once to that provider's alternate.
type Orchestrator struct {
	providers map[string]Provider
	fallback  map[string]string
	timeout   time.Duration
	log       logrus.FieldLogger
}

// NewOrchestrator registers providers by Name(). timeout bounds each attempt
// separately; zero means no per-attempt bound beyond ctx.
func NewOrchestrator(timeout time.Duration, log logrus.FieldLogger, providers ...Provider) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	o := &Orchestrator{
		providers: make(map[string]Provider, len(providers)),
		fallback: map[string]string{
			"groq":      "openai",
			"openai":    "groq",
			"anthropic": "openai",
		},
		timeout: timeout,
		log:     log,
	}
	for _, p := range providers {
		if p != nil {
			o.providers[p.Name()] = p
		}
	}
	return o
}

// SetFallback overrides the alternate used when primary fails.
func (o *Orchestrator) SetFallback(primary, alternate string) {
	o.fallback[primary] = alternate
}

// Has reports whether a provider with that name is registered.
func (o *Orchestrator) Has(name string) bool {
	_, ok := o.providers[name]
	return ok
}

// Providers returns the registered provider names in sorted order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, 0, len(o.providers))
	for name := range o.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Alternate returns the provider tried after primary fails, or "" if none
// is registered.
func (o *Orchestrator) Alternate(primary string) string {
	if alt, ok := o.fallback[primary]; ok && alt != primary && o.Has(alt) {
		return alt
	}
	for _, name := range o.Providers() {
		if name != primary {
			return name
		}
	}
	return ""
}

// Generate completes one turn. The system prompt is prepended to history and
// functions, when given, are offered with automatic tool selection.
func (o *Orchestrator) Generate(ctx context.Context, history []Message, systemPrompt string, functions []FunctionDecl, primary string) (*Result, error) {
	req := &ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     history,
		Functions:    functions,
		Temperature:  Temperature,
		MaxTokens:    MaxTokens,
	}

	resp, primaryErr := o.attempt(ctx, primary, req)
	if primaryErr == nil {
		return toResult(resp, primary, false), nil
	}

	alt := o.Alternate(primary)
	o.log.WithFields(logrus.Fields{
		"provider":  primary,
		"alternate": alt,
	}).WithError(primaryErr).Warn("llm: primary provider failed")

	if alt == "" {
		return nil, fmt.Errorf("%w: %s: %v", ErrAllProvidersFailed, primary, primaryErr)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, ctx.Err())
	}

	resp, altErr := o.attempt(ctx, alt, req)
	if altErr != nil {
		o.log.WithField("provider", alt).WithError(altErr).Error("llm: fallback provider failed")
		return nil, fmt.Errorf("%w: %s: %v; %s: %v", ErrAllProvidersFailed, primary, primaryErr, alt, altErr)
	}

	o.log.WithFields(logrus.Fields{"provider": alt, "primary": primary}).Info("llm: fallback provider answered")
	return toResult(resp, alt, true), nil
}

func (o *Orchestrator) attempt(ctx context.Context, name string, req *ChatRequest) (*ChatResponse, error) {
	p, ok := o.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%s: empty response", name)
	}
	if resp.Content == "" && resp.FunctionCall == nil {
		return nil, fmt.Errorf("%s: response has neither content nor function call", name)
	}
	return resp, nil
}

func toResult(resp *ChatResponse, provider string, fallback bool) *Result {
	return &Result{
		Content:      resp.Content,
		FunctionCall: resp.FunctionCall,
		ProviderUsed: provider,
		FallbackUsed: fallback,
		Usage:        resp.Usage,
	}
}
