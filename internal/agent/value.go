package agent

import (
	"context"
	"fmt"
	"math"

	"polyagent/internal/market"
)

// Value estimates a fair price by removing the market margin and shrinking
// toward 0.5, then trades the gap between fair value and price.
type Value struct {
	shrink  float64
	minEdge float64
}

func NewValue(shrink, minEdge float64) *Value {
	return &Value{shrink: shrink, minEdge: minEdge}
}

func (v *Value) Name() string { return NameValue }

func (v *Value) Evaluate(_ context.Context, snap market.Snapshot) Opinion {
	outcome := snap.PrimaryOutcome()
	price, ok := snap.PriceOf(outcome)
	if !ok {
		return NoSignal(v.Name(), "no price available for the primary outcome", "Missing price data")
	}
	sum := snap.PriceSum()
	if sum <= 0 {
		return NoSignal(v.Name(), "outcome prices sum to zero", "Missing price data")
	}
	fair := 0.5 + (price/sum-0.5)*v.shrink
	edge := fair - price
	margin := snap.Margin()

	var supporting, risks []string
	switch {
	case price < 0.2:
		risks = append(risks, "Long-shot pricing")
	case price > 0.8:
		risks = append(risks, "Heavy favourite - limited upside")
	case price >= 0.45 && price <= 0.55:
		risks = append(risks, "Toss-up pricing")
	}
	if margin > 0.05 {
		risks = append(risks, fmt.Sprintf("Market margin %.1f%% - expensive to trade", margin*100))
	}

	reasoning := fmt.Sprintf("%s price %.3f vs fair value %.3f (edge %+.3f, margin %+.3f)", outcome, price, fair, edge, margin)
	confidence := math.Min(1, 0.5+math.Abs(edge)*4)
	switch {
	case edge > v.minEdge:
		supporting = append(supporting, fmt.Sprintf("Priced %.3f below fair value", edge))
		return NewOpinion(v.Name(), StanceBuy, confidence, reasoning, supporting, risks)
	case edge < -v.minEdge:
		supporting = append(supporting, fmt.Sprintf("Priced %.3f above fair value", -edge))
		return NewOpinion(v.Name(), StanceSell, confidence, reasoning, supporting, risks)
	default:
		return NewOpinion(v.Name(), StanceHold, 0.5, reasoning, supporting, risks)
	}
}
