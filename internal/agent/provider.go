package agent

import (
	"context"
	"fmt"
	"strings"

	"polyagent/internal/market"
)

// Provider evaluates a snapshot. It never fails: a provider that cannot
// form a view returns a HOLD opinion with confidence 0 and a risk factor.
type Provider interface {
	Name() string
	Evaluate(ctx context.Context, snap market.Snapshot) Opinion
}

const (
	NameDataQuality = "data_quality"
	NameValue       = "value"
	NameResearch    = "research"
	NameSentiment   = "sentiment"
)

// Settings tunes the built-in providers.
type Settings struct {
	ThinLiquidity float64
	ValueShrink   float64
	ValueMinEdge  float64
}

func DefaultSettings() Settings {
	return Settings{ThinLiquidity: 5000, ValueShrink: 0.7, ValueMinEdge: 0.03}
}

// Build returns the providers named in names, in that order.
func Build(names []string, s Settings) ([]Provider, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	out := make([]Provider, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case NameDataQuality:
			out = append(out, NewDataQuality(s.ThinLiquidity))
		case NameValue:
			out = append(out, NewValue(s.ValueShrink, s.ValueMinEdge))
		case NameResearch:
			out = append(out, NewResearch())
		case NameSentiment:
			out = append(out, NewSentiment())
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	return out, nil
}
