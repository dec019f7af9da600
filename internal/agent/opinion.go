package agent

import (
	"math"
	"strings"
)

type Stance string

const (
	StanceBuy  Stance = "BUY"
	StanceSell Stance = "SELL"
	StanceHold Stance = "HOLD"
)

// ParseStance maps free text onto a stance; unknown values become HOLD.
func ParseStance(s string) Stance {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "YES", "LONG":
		return StanceBuy
	case "SELL", "NO", "SHORT":
		return StanceSell
	default:
		return StanceHold
	}
}

// Unit is the signed vote of a stance: BUY +1, SELL -1, HOLD 0.
func (s Stance) Unit() int {
	switch s {
	case StanceBuy:
		return 1
	case StanceSell:
		return -1
	default:
		return 0
	}
}

// Opinion is one provider's view of one snapshot.
type Opinion struct {
	Provider   string   `json:"provider"`
	Stance     Stance   `json:"stance"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Supporting []string `json:"supporting_factors"`
	Risks      []string `json:"risk_factors"`
}

// NewOpinion clamps confidence into [0,1] and copies the factor lists.
func NewOpinion(provider string, stance Stance, confidence float64, reasoning string, supporting, risks []string) Opinion {
	switch stance {
	case StanceBuy, StanceSell, StanceHold:
	default:
		stance = StanceHold
	}
	return Opinion{
		Provider:   provider,
		Stance:     stance,
		Confidence: clamp01(confidence),
		Reasoning:  reasoning,
		Supporting: append([]string(nil), supporting...),
		Risks:      append([]string(nil), risks...),
	}
}

// NoSignal is the HOLD/0 opinion a provider emits when it cannot evaluate.
func NoSignal(provider, reasoning, risk string) Opinion {
	return NewOpinion(provider, StanceHold, 0, reasoning, nil, []string{risk})
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
