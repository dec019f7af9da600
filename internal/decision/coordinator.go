package decision

import (
	"fmt"

	"polyagent/internal/agent"
	"polyagent/internal/market"

	"github.com/shopspring/decimal"
)

// Coordinator folds provider opinions into one Decision.
type Coordinator struct {
	cfg Config
}

func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{cfg: cfg}
}

func (c *Coordinator) Config() Config { return c.cfg }

// Decide is a pure function of snap, opinions and the coordinator config.
//
// Each opinion votes u in {+1, 0, -1} weighted by its confidence c; the score
// S = sum(u*c)/sum(c), or the plain mean of u when every confidence is zero.
// S above BuyThreshold is BUY, below SellThreshold is SELL, anything else HOLD.
func (c *Coordinator) Decide(snap market.Snapshot, opinions []agent.Opinion) (Decision, error) {
	if len(opinions) == 0 {
		return Decision{}, fmt.Errorf("decide %s: %w", snap.ID, ErrNoOpinions)
	}

	score := weightedScore(opinions)
	stance := agent.StanceHold
	switch {
	case score.GreaterThan(decimal.NewFromFloat(c.cfg.BuyThreshold)):
		stance = agent.StanceBuy
	case score.LessThan(decimal.NewFromFloat(c.cfg.SellThreshold)):
		stance = agent.StanceSell
	}

	matching := 0
	matchSum := decimal.Zero
	allSum := decimal.Zero
	for _, op := range opinions {
		conf := decimal.NewFromFloat(op.Confidence)
		allSum = allSum.Add(conf)
		if op.Stance == stance {
			matching++
			matchSum = matchSum.Add(conf)
		}
	}
	total := decimal.NewFromInt(int64(len(opinions)))
	aggregate := allSum.Div(total)
	if matching > 0 {
		aggregate = matchSum.Div(decimal.NewFromInt(int64(matching)))
	}
	consensus := decimal.NewFromInt(int64(matching)).Div(total)

	outcome := snap.PrimaryOutcome()
	price, hasPrice := snap.PriceOf(outcome)

	d := Decision{
		MarketID:            snap.ID,
		MarketTitle:         snap.Title,
		Stance:              stance,
		Outcome:             outcome,
		Price:               price,
		Score:               score.InexactFloat64(),
		AggregateConfidence: aggregate.InexactFloat64(),
		ConsensusLevel:      consensus.InexactFloat64(),
		SupportingFactors:   c.truncate(mergeFactors(opinions, func(op agent.Opinion) []string { return op.Supporting })),
		RiskFactors:         c.truncate(mergeFactors(opinions, func(op agent.Opinion) []string { return op.Risks })),
		Opinions:            cloneOpinions(opinions),
	}

	if stance != agent.StanceHold && hasPrice {
		breakEven := decimal.NewFromFloat(price)
		if stance == agent.StanceSell {
			breakEven = decimal.NewFromInt(1).Sub(breakEven)
		}
		edge, size := Size(aggregate, breakEven, c.cfg)
		d.Edge = edge.InexactFloat64()
		d.SuggestedSize = size.InexactFloat64()
	}
	return d, nil
}

func weightedScore(opinions []agent.Opinion) decimal.Decimal {
	num := decimal.Zero
	den := decimal.Zero
	units := decimal.Zero
	for _, op := range opinions {
		u := decimal.NewFromInt(int64(op.Stance.Unit()))
		conf := decimal.NewFromFloat(op.Confidence)
		num = num.Add(u.Mul(conf))
		den = den.Add(conf)
		units = units.Add(u)
	}
	if den.IsZero() {
		return units.Div(decimal.NewFromInt(int64(len(opinions))))
	}
	return num.Div(den)
}

// mergeFactors is an order-preserving union with exact-text dedup.
func mergeFactors(opinions []agent.Opinion, pick func(agent.Opinion) []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, op := range opinions {
		for _, f := range pick(op) {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

func (c *Coordinator) truncate(factors []string) []string {
	if c.cfg.MaxFactors > 0 && len(factors) > c.cfg.MaxFactors {
		return factors[:c.cfg.MaxFactors]
	}
	return factors
}

func cloneOpinions(in []agent.Opinion) []agent.Opinion {
	out := make([]agent.Opinion, len(in))
	for i, op := range in {
		out[i] = agent.NewOpinion(op.Provider, op.Stance, op.Confidence, op.Reasoning, op.Supporting, op.Risks)
	}
	return out
}
