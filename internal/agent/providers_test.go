package agent

import (
	"context"
	"testing"

	"polyagent/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func binary(yes float64, volume, liquidity float64) market.Snapshot {
	return market.Snapshot{
		ID:        "m",
		Title:     "Market?",
		Outcomes:  []string{"Yes", "No"},
		Prices:    map[string]float64{"Yes": yes, "No": 1 - yes},
		Volume24h: volume,
		Liquidity: liquidity,
	}
}

func TestNewOpinionClampsAndCopies(t *testing.T) {
	risks := []string{"r"}
	op := NewOpinion("p", StanceBuy, 1.7, "x", nil, risks)
	assert.Equal(t, 1.0, op.Confidence)
	risks[0] = "changed"
	assert.Equal(t, "r", op.Risks[0])
	assert.Equal(t, 0.0, NewOpinion("p", StanceSell, -0.2, "", nil, nil).Confidence)
	assert.Equal(t, StanceHold, NewOpinion("p", Stance("MAYBE"), 0.5, "", nil, nil).Stance)
}

func TestParseStanceAndUnit(t *testing.T) {
	assert.Equal(t, StanceBuy, ParseStance("yes"))
	assert.Equal(t, StanceSell, ParseStance(" sell "))
	assert.Equal(t, StanceHold, ParseStance("whatever"))
	assert.Equal(t, 1, StanceBuy.Unit())
	assert.Equal(t, -1, StanceSell.Unit())
	assert.Equal(t, 0, StanceHold.Unit())
}

func TestDataQuality(t *testing.T) {
	dq := NewDataQuality(5000)
	ctx := context.Background()

	thin := dq.Evaluate(ctx, binary(0.3, 50_000, 1000))
	assert.Equal(t, StanceHold, thin.Stance)
	assert.Equal(t, 0.2, thin.Confidence)
	assert.Contains(t, thin.Risks, "Low liquidity - high slippage risk")

	cheap := dq.Evaluate(ctx, binary(0.3, 200_000, 50_000))
	assert.Equal(t, StanceBuy, cheap.Stance)
	assert.InDelta(t, 0.85, cheap.Confidence, 1e-9)
	assert.Contains(t, cheap.Supporting, "High trading volume: $200000")

	rich := dq.Evaluate(ctx, binary(0.7, 5_000, 50_000))
	assert.Equal(t, StanceSell, rich.Stance)
	assert.Contains(t, rich.Risks, "Low trading volume: $5000")

	mid := dq.Evaluate(ctx, binary(0.45, 500_000, 50_000))
	assert.Equal(t, StanceBuy, mid.Stance)
	assert.Equal(t, 0.70, mid.Confidence)

	quiet := dq.Evaluate(ctx, binary(0.55, 50_000, 50_000))
	assert.Equal(t, StanceHold, quiet.Stance)
	assert.Equal(t, 0.5, quiet.Confidence)

	partial := dq.Evaluate(ctx, binary(0.2, 0, 50_000))
	assert.Equal(t, StanceBuy, partial.Stance)
	assert.InDelta(t, 0.5, partial.Confidence, 1e-9)

	none := dq.Evaluate(ctx, market.Snapshot{ID: "m"})
	assert.Equal(t, StanceHold, none.Stance)
	assert.Equal(t, 0.0, none.Confidence)
}

func TestValue(t *testing.T) {
	v := NewValue(0.7, 0.03)
	ctx := context.Background()

	cheap := v.Evaluate(ctx, binary(0.35, 0, 0))
	assert.Equal(t, StanceBuy, cheap.Stance)
	// fair = 0.5 + (0.35-0.5)*0.7 = 0.395, edge 0.045
	assert.InDelta(t, 0.68, cheap.Confidence, 1e-9)

	rich := v.Evaluate(ctx, binary(0.9, 0, 0))
	assert.Equal(t, StanceSell, rich.Stance)
	assert.Contains(t, rich.Risks, "Heavy favourite - limited upside")

	flat := v.Evaluate(ctx, binary(0.5, 0, 0))
	assert.Equal(t, StanceHold, flat.Stance)
	assert.Contains(t, flat.Risks, "Toss-up pricing")

	wide := market.Snapshot{ID: "m", Outcomes: []string{"Yes", "No"}, Prices: map[string]float64{"Yes": 0.3, "No": 0.8}}
	op := v.Evaluate(ctx, wide)
	require.NotEmpty(t, op.Risks)
	assert.Contains(t, op.Risks[len(op.Risks)-1], "expensive to trade")
}

func TestLexiconProviders(t *testing.T) {
	ctx := context.Background()
	snap := binary(0.5, 0, 0)

	snap.Context = "Analysts say a win is likely, support is strong and the candidate is leading. Strong strong."
	op := NewResearch().Evaluate(ctx, snap)
	assert.Equal(t, StanceBuy, op.Stance)
	// likely, support, strong, leading
	assert.InDelta(t, 0.90, op.Confidence, 1e-9)

	snap.Context = "Traders are worried and pessimistic; momentum is down and the outlook is bad."
	op = NewSentiment().Evaluate(ctx, snap)
	assert.Equal(t, StanceSell, op.Stance)
	assert.InDelta(t, 0.86, op.Confidence, 1e-9)

	snap.Context = "good bad"
	op = NewSentiment().Evaluate(ctx, snap)
	assert.Equal(t, StanceHold, op.Stance)
	assert.Equal(t, 0.3, op.Confidence)

	snap.Context = "likely probable increasing strong support good favor bullish winning leading"
	assert.Equal(t, 0.95, NewResearch().Evaluate(ctx, snap).Confidence)

	snap.Context = "   "
	op = NewResearch().Evaluate(ctx, snap)
	assert.Equal(t, StanceHold, op.Stance)
	assert.Equal(t, 0.0, op.Confidence)
	assert.Equal(t, []string{"no external context"}, op.Risks)
}

func TestLexiconMatchesWholeWords(t *testing.T) {
	snap := binary(0.5, 0, 0)
	snap.Context = "upgrade downtown"
	op := NewSentiment().Evaluate(context.Background(), snap)
	assert.Equal(t, StanceHold, op.Stance)
}

func TestBuild(t *testing.T) {
	providers, err := Build([]string{"value", "Sentiment"}, DefaultSettings())
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, NameValue, providers[0].Name())
	assert.Equal(t, NameSentiment, providers[1].Name())

	_, err = Build([]string{"oracle"}, DefaultSettings())
	assert.Error(t, err)
	_, err = Build(nil, DefaultSettings())
	assert.Error(t, err)
}
