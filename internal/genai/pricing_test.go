package genai

import (
	"math"
	"testing"
)

func TestCost(t *testing.T) {
	got := Cost("gpt-4o-mini", 1_000_000, 1_000_000)
	if math.Abs(got-0.75) > 1e-9 {
		t.Errorf("expected 0.75, got %v", got)
	}
	if Cost("gpt-4o-mini", 0, 0) != 0 {
		t.Error("zero tokens should cost nothing")
	}
}

func TestPriceForSnapshots(t *testing.T) {
	if p := PriceFor("gpt-4o-mini-2024-07-18"); p != prices["gpt-4o-mini"] {
		t.Errorf("dated snapshot priced as %+v", p)
	}
	if p := PriceFor("gpt-4o-2024-08-06"); p != prices["gpt-4o"] {
		t.Errorf("gpt-4o snapshot priced as %+v", p)
	}
	if p := PriceFor("some-future-model"); p != prices[DefaultOpenAIModel] {
		t.Errorf("unknown model priced as %+v", p)
	}
}
