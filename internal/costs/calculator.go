// Package costs estimates what a call spent on model tokens.
package costs

import (
	"math"
	"os"
	"sort"
	"strconv"
)

// Rate is a provider's price in cents per 1K tokens.
type Rate struct {
	InputCentsPer1K  float64
	OutputCentsPer1K float64
}

// Rates are list prices for the default models and can be overridden via
// environment variables.
var Rates = map[string]Rate{
	// llama-3.3-70b: $0.59 / $0.79 per 1M
	"groq": {
		InputCentsPer1K:  getEnvFloat("COST_GROQ_INPUT_CENTS_PER_1K", 0.059),
		OutputCentsPer1K: getEnvFloat("COST_GROQ_OUTPUT_CENTS_PER_1K", 0.079),
	},
	// gpt-4o-mini: $0.15 / $0.60 per 1M
	"openai": {
		InputCentsPer1K:  getEnvFloat("COST_OPENAI_INPUT_CENTS_PER_1K", 0.015),
		OutputCentsPer1K: getEnvFloat("COST_OPENAI_OUTPUT_CENTS_PER_1K", 0.06),
	},
	// claude haiku: $0.80 / $4 per 1M
	"anthropic": {
		InputCentsPer1K:  getEnvFloat("COST_ANTHROPIC_INPUT_CENTS_PER_1K", 0.08),
		OutputCentsPer1K: getEnvFloat("COST_ANTHROPIC_OUTPUT_CENTS_PER_1K", 0.4),
	},
}

// Tokens is one provider's token count.
type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Ledger accumulates a call's token usage per provider. A failover turn is
// billed to the provider that answered.
type Ledger map[string]Tokens

func (l *Ledger) Add(provider string, input, output int) {
	if *l == nil {
		*l = Ledger{}
	}
	t := (*l)[provider]
	t.Input += input
	t.Output += output
	(*l)[provider] = t
}

// Total sums tokens across providers.
func (l Ledger) Total() Tokens {
	var sum Tokens
	for _, t := range l {
		sum.Input += t.Input
		sum.Output += t.Output
	}
	return sum
}

// Cents estimates the spend, rounded to 1/10000 of a cent. Providers without
// a rate count as free.
func (l Ledger) Cents() float64 {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)

	var cents float64
	for _, name := range names {
		cents += CentsFor(name, l[name])
	}
	return round4(cents)
}

// CentsFor prices one provider's tokens.
func CentsFor(provider string, t Tokens) float64 {
	r, ok := Rates[provider]
	if !ok {
		return 0
	}
	return float64(t.Input)/1000*r.InputCentsPer1K + float64(t.Output)/1000*r.OutputCentsPer1K
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
