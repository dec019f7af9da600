package agent

import (
	"context"
	"fmt"
	"math"

	"polyagent/internal/market"
)

const (
	highVolume = 100_000
	lowVolume  = 10_000
)

// DataQuality judges whether the market is complete and liquid enough to
// trust its price, and leans against prices far from the middle.
type DataQuality struct {
	thinLiquidity float64
}

func NewDataQuality(thinLiquidity float64) *DataQuality {
	return &DataQuality{thinLiquidity: thinLiquidity}
}

func (d *DataQuality) Name() string { return NameDataQuality }

func (d *DataQuality) Evaluate(_ context.Context, snap market.Snapshot) Opinion {
	outcome := snap.PrimaryOutcome()
	price, ok := snap.PriceOf(outcome)
	if !ok {
		return NoSignal(d.Name(), "no price available for the primary outcome", "Missing price data")
	}
	complete := len(snap.Prices) > 0 && snap.Volume24h > 0 && snap.Liquidity > 0
	base := 0.4
	if complete {
		base = 0.8
	}

	var supporting, risks []string
	switch {
	case snap.Volume24h > highVolume:
		supporting = append(supporting, fmt.Sprintf("High trading volume: $%.0f", snap.Volume24h))
	case snap.Volume24h < lowVolume:
		risks = append(risks, fmt.Sprintf("Low trading volume: $%.0f", snap.Volume24h))
	}
	if !complete {
		risks = append(risks, "Incomplete market data")
	}

	if snap.Liquidity < d.thinLiquidity {
		risks = append(risks, "Low liquidity - high slippage risk")
		return NewOpinion(d.Name(), StanceHold, 0.2,
			fmt.Sprintf("liquidity $%.0f below $%.0f", snap.Liquidity, d.thinLiquidity), supporting, risks)
	}

	confidence := math.Min(0.85, base+0.1)
	switch {
	case price < 0.4:
		supporting = append(supporting, fmt.Sprintf("%s priced low at %.2f", outcome, price))
		return NewOpinion(d.Name(), StanceBuy, confidence,
			fmt.Sprintf("data is sound and %s trades at %.2f, below 0.40", outcome, price), supporting, risks)
	case price > 0.6:
		supporting = append(supporting, fmt.Sprintf("%s priced high at %.2f", outcome, price))
		return NewOpinion(d.Name(), StanceSell, confidence,
			fmt.Sprintf("data is sound and %s trades at %.2f, above 0.60", outcome, price), supporting, risks)
	case snap.Volume24h > highVolume:
		stance := StanceSell
		if price < 0.5 {
			stance = StanceBuy
		}
		return NewOpinion(d.Name(), stance, 0.70,
			fmt.Sprintf("mid-range price %.2f with heavy volume", price), supporting, risks)
	default:
		return NewOpinion(d.Name(), StanceHold, 0.5,
			fmt.Sprintf("mid-range price %.2f without a volume signal", price), supporting, risks)
	}
}
