package decision

import (
	"testing"

	"polyagent/internal/agent"
	"polyagent/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(yes float64) market.Snapshot {
	return market.Snapshot{
		ID:       "m1",
		Title:    "Market one?",
		Outcomes: []string{"Yes", "No"},
		Prices:   map[string]float64{"Yes": yes, "No": 1 - yes},
	}
}

func op(name string, stance agent.Stance, conf float64) agent.Opinion {
	return agent.NewOpinion(name, stance, conf, "", nil, nil)
}

func TestDecideTwoBuyers(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	d, err := c.Decide(snapshot(0.5), []agent.Opinion{
		op("a", agent.StanceBuy, 0.8),
		op("b", agent.StanceBuy, 0.6),
	})
	require.NoError(t, err)
	assert.Equal(t, agent.StanceBuy, d.Stance)
	assert.Equal(t, "Yes", d.Outcome)
	assert.Equal(t, 0.5, d.Price)
	assert.Equal(t, 1.0, d.Score)
	assert.Equal(t, 0.7, d.AggregateConfidence)
	assert.Equal(t, 1.0, d.ConsensusLevel)
	assert.Equal(t, 0.2, d.Edge)
	assert.Equal(t, 0.1, d.SuggestedSize)
}

func TestDecideNoOpinions(t *testing.T) {
	_, err := NewCoordinator(DefaultConfig()).Decide(snapshot(0.5), nil)
	assert.ErrorIs(t, err, ErrNoOpinions)
}

func TestDecideBalancedVotesHold(t *testing.T) {
	d, err := NewCoordinator(DefaultConfig()).Decide(snapshot(0.5), []agent.Opinion{
		op("a", agent.StanceBuy, 0.7),
		op("b", agent.StanceSell, 0.7),
	})
	require.NoError(t, err)
	assert.Equal(t, agent.StanceHold, d.Stance)
	assert.Equal(t, 0.0, d.Score)
	assert.Equal(t, 0.0, d.ConsensusLevel)
	assert.Equal(t, 0.7, d.AggregateConfidence)
	assert.Equal(t, 0.0, d.SuggestedSize)
}

func TestDecideScoreOnThresholdIsHold(t *testing.T) {
	// S = 0.15 exactly: (0.3 - 0.15) / 1.0
	d, err := NewCoordinator(DefaultConfig()).Decide(snapshot(0.5), []agent.Opinion{
		op("a", agent.StanceBuy, 0.3),
		op("b", agent.StanceSell, 0.15),
		op("c", agent.StanceHold, 0.55),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.15, d.Score)
	assert.Equal(t, agent.StanceHold, d.Stance)
}

func TestDecideAllZeroConfidenceUsesEqualWeights(t *testing.T) {
	d, err := NewCoordinator(DefaultConfig()).Decide(snapshot(0.5), []agent.Opinion{
		op("a", agent.StanceBuy, 0),
		op("b", agent.StanceBuy, 0),
		op("c", agent.StanceHold, 0),
	})
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, d.Score, 1e-12)
	assert.Equal(t, agent.StanceBuy, d.Stance)
	assert.Equal(t, 0.0, d.AggregateConfidence)
	assert.Equal(t, 0.0, d.SuggestedSize)
	assert.InDelta(t, -0.5, d.Edge, 1e-12)
}

func TestDecideSellUsesComplementPrice(t *testing.T) {
	d, err := NewCoordinator(DefaultConfig()).Decide(snapshot(0.7), []agent.Opinion{
		op("a", agent.StanceSell, 0.5),
		op("b", agent.StanceSell, 0.5),
		op("c", agent.StanceBuy, 0.2),
	})
	require.NoError(t, err)
	assert.Equal(t, agent.StanceSell, d.Stance)
	assert.Equal(t, 0.5, d.AggregateConfidence)
	assert.InDelta(t, 2.0/3.0, d.ConsensusLevel, 1e-12)
	// break-even on the sell side is 1 - 0.7 = 0.3
	assert.Equal(t, 0.2, d.Edge)
	assert.Equal(t, 0.1, d.SuggestedSize)
}

func TestDecideMissingPriceGivesZeroSize(t *testing.T) {
	snap := snapshot(0.5)
	snap.Prices = nil
	d, err := NewCoordinator(DefaultConfig()).Decide(snap, []agent.Opinion{op("a", agent.StanceBuy, 0.9)})
	require.NoError(t, err)
	assert.Equal(t, agent.StanceBuy, d.Stance)
	assert.Equal(t, 0.0, d.SuggestedSize)
}

func TestDecideFactorsDedupInOrder(t *testing.T) {
	ops := []agent.Opinion{
		agent.NewOpinion("a", agent.StanceBuy, 0.8, "", []string{"x", "y"}, []string{"r1"}),
		agent.NewOpinion("b", agent.StanceBuy, 0.8, "", []string{"y", "z", "x"}, []string{"r1", "r2"}),
	}
	d, err := NewCoordinator(DefaultConfig()).Decide(snapshot(0.5), ops)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, d.SupportingFactors)
	assert.Equal(t, []string{"r1", "r2"}, d.RiskFactors)
	assert.Len(t, d.Opinions, 2)

	cfg := DefaultConfig()
	cfg.MaxFactors = 2
	d, err = NewCoordinator(cfg).Decide(snapshot(0.5), ops)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, d.SupportingFactors)
}

func TestDecideIsDeterministic(t *testing.T) {
	ops := []agent.Opinion{
		agent.NewOpinion("a", agent.StanceBuy, 0.81, "r", []string{"x"}, []string{"y"}),
		agent.NewOpinion("b", agent.StanceSell, 0.33, "r", nil, []string{"z"}),
		agent.NewOpinion("c", agent.StanceHold, 0.5, "r", nil, nil),
	}
	c := NewCoordinator(DefaultConfig())
	first, err := c.Decide(snapshot(0.42), ops)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := c.Decide(snapshot(0.42), ops)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDecideDoesNotAliasInput(t *testing.T) {
	ops := []agent.Opinion{agent.NewOpinion("a", agent.StanceBuy, 0.8, "", []string{"x"}, nil)}
	d, err := NewCoordinator(DefaultConfig()).Decide(snapshot(0.5), ops)
	require.NoError(t, err)
	ops[0].Supporting[0] = "mutated"
	assert.Equal(t, "x", d.Opinions[0].Supporting[0])
	assert.Equal(t, "x", d.SupportingFactors[0])
}

func TestSize(t *testing.T) {
	cfg := DefaultConfig()
	dec := decimal.NewFromFloat

	edge, size := Size(dec(0.9), dec(0.5), cfg)
	assert.True(t, edge.Equal(dec(0.4)))
	assert.True(t, size.Equal(dec(0.2)), size.String())

	_, size = Size(dec(0.5), dec(0.5), cfg)
	assert.True(t, size.IsZero())

	_, size = Size(dec(0.4), dec(0.5), cfg)
	assert.True(t, size.IsZero())

	cfg.MinEdge = 0.05
	_, size = Size(dec(0.54), dec(0.5), cfg)
	assert.True(t, size.IsZero())
	_, size = Size(dec(0.6), dec(0.5), cfg)
	assert.True(t, size.Equal(dec(0.05)), size.String())
}

func TestVotesAndSummary(t *testing.T) {
	d, err := NewCoordinator(DefaultConfig()).Decide(snapshot(0.5), []agent.Opinion{
		op("a", agent.StanceBuy, 0.8),
		op("b", agent.StanceHold, 0.4),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "BUY", "b": "HOLD"}, d.Votes())
	assert.Contains(t, d.Summary(), "stance=BUY")
	assert.Contains(t, d.Summary(), "[a] BUY")
}
