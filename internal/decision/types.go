package decision

import (
	"errors"

	"polyagent/internal/agent"
)

// ErrNoOpinions is returned when the coordinator is asked to decide without input.
var ErrNoOpinions = errors.New("no opinions to aggregate")

// Decision is the coordinator's verdict for one snapshot. It carries no clock
// or random data, so the same inputs always produce the same Decision.
type Decision struct {
	MarketID            string          `json:"market_id"`
	MarketTitle         string          `json:"market_title"`
	Stance              agent.Stance    `json:"stance"`
	Outcome             string          `json:"outcome"`
	Price               float64         `json:"price"`
	Score               float64         `json:"score"`
	AggregateConfidence float64         `json:"aggregate_confidence"`
	ConsensusLevel      float64         `json:"consensus_level"`
	Edge                float64         `json:"edge"`
	SuggestedSize       float64         `json:"suggested_size"`
	SupportingFactors   []string        `json:"supporting_factors"`
	RiskFactors         []string        `json:"risk_factors"`
	Opinions            []agent.Opinion `json:"opinions"`
}

// Votes maps each provider to the stance it voted.
func (d Decision) Votes() map[string]string {
	out := make(map[string]string, len(d.Opinions))
	for _, op := range d.Opinions {
		out[op.Provider] = string(op.Stance)
	}
	return out
}

// Config holds the coordinator thresholds.
type Config struct {
	BuyThreshold  float64
	SellThreshold float64
	KellyFraction float64
	SizeCap       float64
	MinEdge       float64
	MaxFactors    int // 0 keeps every factor
}

func DefaultConfig() Config {
	return Config{
		BuyThreshold:  0.15,
		SellThreshold: -0.15,
		KellyFraction: 0.5,
		SizeCap:       0.20,
	}
}
