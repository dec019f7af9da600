package policy

import (
	"encoding/json"
	"fmt"
	"time"

	"polyagent/internal/agent"
	"polyagent/internal/decision"
	"polyagent/internal/portfolio"

	"github.com/shopspring/decimal"
)

// SkipReason says why the gate produced no order. Skips are normal outcomes, not errors.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipHold             SkipReason = "hold"
	SkipLowConfidence    SkipReason = "low_confidence"
	SkipLowConsensus     SkipReason = "low_consensus"
	SkipNoEdge           SkipReason = "no_edge"
	SkipInvalidPrice     SkipReason = "invalid_price"
	SkipZeroNotional     SkipReason = "zero_notional"
	SkipInsufficientCash SkipReason = "insufficient_cash"
	SkipPositionOpen     SkipReason = "position_open"
)

// Config is the trading gate's runtime configuration.
type Config struct {
	MinConfidence    float64       `json:"min_confidence"`
	MinConsensus     float64       `json:"min_consensus"`
	MaxPositionSize  float64       `json:"max_position_size"`
	CheckInterval    time.Duration `json:"check_interval"`
	MaxOpenPerMarket int           `json:"max_open_per_market"` // 0 means unlimited
}

type configJSON struct {
	MinConfidence    float64 `json:"min_confidence"`
	MinConsensus     float64 `json:"min_consensus"`
	MaxPositionSize  float64 `json:"max_position_size"`
	CheckInterval    float64 `json:"check_interval"` // seconds
	MaxOpenPerMarket int     `json:"max_open_per_market"`
}

// MarshalJSON writes check_interval in seconds.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		MinConfidence:    c.MinConfidence,
		MinConsensus:     c.MinConsensus,
		MaxPositionSize:  c.MaxPositionSize,
		CheckInterval:    c.CheckInterval.Seconds(),
		MaxOpenPerMarket: c.MaxOpenPerMarket,
	})
}

func (c *Config) UnmarshalJSON(data []byte) error {
	var raw configJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Config{
		MinConfidence:    raw.MinConfidence,
		MinConsensus:     raw.MinConsensus,
		MaxPositionSize:  raw.MaxPositionSize,
		CheckInterval:    time.Duration(raw.CheckInterval * float64(time.Second)),
		MaxOpenPerMarket: raw.MaxOpenPerMarket,
	}
	return nil
}

func DefaultConfig() Config {
	return Config{
		MinConfidence:    0.7,
		MinConsensus:     0.6,
		MaxPositionSize:  500,
		CheckInterval:    300 * time.Second,
		MaxOpenPerMarket: 1,
	}
}

// Verdict is the gate's answer: an order to apply, or a reason to skip.
type Verdict struct {
	Execute bool             `json:"execute"`
	Order   *portfolio.Order `json:"order,omitempty"`
	Reason  SkipReason       `json:"reason,omitempty"`
	Detail  string           `json:"detail,omitempty"`
}

func skip(reason SkipReason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Gate turns decisions into orders against a portfolio snapshot.
type Gate struct{}

func NewGate() *Gate { return &Gate{} }

// Evaluate checks d against the thresholds in cfg and the state of p. The
// notional is min(size * total_value, max_position_size) and must fit in cash.
func (g *Gate) Evaluate(d decision.Decision, p portfolio.Portfolio, cfg Config) Verdict {
	if d.Stance == agent.StanceHold {
		return skip(SkipHold, "stance is HOLD (score %+.3f)", d.Score)
	}
	if d.AggregateConfidence < cfg.MinConfidence {
		return skip(SkipLowConfidence, "confidence %.3f < %.3f", d.AggregateConfidence, cfg.MinConfidence)
	}
	if d.ConsensusLevel < cfg.MinConsensus {
		return skip(SkipLowConsensus, "consensus %.3f < %.3f", d.ConsensusLevel, cfg.MinConsensus)
	}
	if d.SuggestedSize <= 0 {
		return skip(SkipNoEdge, "no edge (edge %+.3f)", d.Edge)
	}
	if d.Price <= 0 || d.Price >= 1 {
		return skip(SkipInvalidPrice, "price %.4f outside (0,1)", d.Price)
	}
	if cfg.MaxOpenPerMarket > 0 {
		if open := p.OpenCount(d.MarketID); open >= cfg.MaxOpenPerMarket {
			return skip(SkipPositionOpen, "%d open position(s) on %s", open, d.MarketID)
		}
	}

	notional := decimal.NewFromFloat(d.SuggestedSize).Mul(p.TotalValue)
	if maxSize := decimal.NewFromFloat(cfg.MaxPositionSize); notional.GreaterThan(maxSize) {
		notional = maxSize
	}
	notional = notional.Round(2)
	if !notional.IsPositive() {
		return skip(SkipZeroNotional, "notional %s is not positive", notional.StringFixed(2))
	}
	if notional.GreaterThan(p.Cash) {
		return skip(SkipInsufficientCash, "notional %s exceeds cash %s", notional.StringFixed(2), p.Cash.StringFixed(2))
	}

	side := portfolio.SideBuy
	if d.Stance == agent.StanceSell {
		side = portfolio.SideSell
	}
	price := decimal.NewFromFloat(d.Price)
	order := portfolio.Order{
		Side:        side,
		MarketID:    d.MarketID,
		MarketTitle: d.MarketTitle,
		Outcome:     d.Outcome,
		Size:        notional,
		Price:       price,
		Shares:      notional.Div(price),
		Confidence:  d.AggregateConfidence,
		Consensus:   d.ConsensusLevel,
		AgentVotes:  d.Votes(),
	}
	return Verdict{Execute: true, Order: &order}
}
