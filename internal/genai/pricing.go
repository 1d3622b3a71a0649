package genai

import "strings"

// Price is the USD cost per million tokens.
type Price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var prices = map[string]Price{
	"gpt-4o-mini":             {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4o":                  {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4.1-mini":            {InputPerMillion: 0.40, OutputPerMillion: 1.60},
	"claude-3-5-haiku-latest": {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"claude-3-haiku-20240307": {InputPerMillion: 0.25, OutputPerMillion: 1.25},
}

// PriceFor returns the price of model. Dated snapshots resolve to their base model
// and unknown models are priced as gpt-4o-mini.
func PriceFor(model string) Price {
	if p, ok := prices[model]; ok {
		return p
	}
	best := ""
	for name := range prices {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best != "" {
		return prices[best]
	}
	return prices[DefaultOpenAIModel]
}

// Cost returns the USD cost of a call.
func Cost(model string, promptTokens, completionTokens int) float64 {
	p := PriceFor(model)
	return (float64(promptTokens)*p.InputPerMillion + float64(completionTokens)*p.OutputPerMillion) / 1_000_000
}
