package portfolio

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Order is a trade instruction produced by the policy gate.
type Order struct {
	Side        Side              `json:"side"`
	MarketID    string            `json:"market_id"`
	MarketTitle string            `json:"market_title"`
	Outcome     string            `json:"outcome"`
	Size        decimal.Decimal   `json:"size"`
	Price       decimal.Decimal   `json:"price"`
	Shares      decimal.Decimal   `json:"shares"`
	Confidence  float64           `json:"confidence"`
	Consensus   float64           `json:"consensus"`
	AgentVotes  map[string]string `json:"agent_votes,omitempty"`
}

// Position is a ledger entry. It only changes once, when it is resolved.
type Position struct {
	TradeID         string            `json:"trade_id"`
	MarketID        string            `json:"market_id"`
	MarketTitle     string            `json:"market_title"`
	Side            Side              `json:"side"`
	Outcome         string            `json:"outcome"`
	EntryPrice      decimal.Decimal   `json:"entry_price"`
	Size            decimal.Decimal   `json:"size"`
	Shares          decimal.Decimal   `json:"shares"`
	MarkPrice       decimal.Decimal   `json:"mark_price"`
	Confidence      float64           `json:"confidence"`
	Consensus       float64           `json:"consensus"`
	AgentVotes      map[string]string `json:"agent_votes,omitempty"`
	ExecutedAt      time.Time         `json:"executed_at"`
	Status          Status            `json:"status"`
	ResolvedOutcome string            `json:"resolved_outcome,omitempty"`
	ExitPrice       decimal.Decimal   `json:"exit_price"`
	PnL             decimal.Decimal   `json:"pnl"`
	ClosedAt        *time.Time        `json:"closed_at,omitempty"`
}

// MarkValue is what the position is worth at its mark price.
// A buy is worth shares*mark; a sell is worth size + (entry-mark)*shares,
// floored at zero since settlement never loses more than size.
func (p Position) MarkValue() decimal.Decimal {
	if p.Side == SideSell {
		return decimal.Max(decimal.Zero, p.Size.Add(p.EntryPrice.Sub(p.MarkPrice).Mul(p.Shares)))
	}
	return p.Shares.Mul(p.MarkPrice)
}

// favourable reports whether resolving to outcome pays the position.
func (p Position) favourable(outcome string) bool {
	same := strings.EqualFold(strings.TrimSpace(outcome), strings.TrimSpace(p.Outcome))
	if p.Side == SideSell {
		return !same
	}
	return same
}

func (p Position) clone() Position {
	out := p
	if p.AgentVotes != nil {
		out.AgentVotes = make(map[string]string, len(p.AgentVotes))
		for k, v := range p.AgentVotes {
			out.AgentVotes[k] = v
		}
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

// Portfolio is a point-in-time view of the ledger.
type Portfolio struct {
	TotalValue      decimal.Decimal `json:"total_value"`
	Cash            decimal.Decimal `json:"cash"`
	StartingCash    decimal.Decimal `json:"starting_cash"`
	OpenPositions   []Position      `json:"open_positions"`
	ClosedPositions []Position      `json:"closed_positions"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	WinRate         float64         `json:"win_rate"`
	TotalTrades     int             `json:"total_trades"`
	WinningTrades   int             `json:"winning_trades"`
	LastUpdated     time.Time       `json:"last_updated"`
}

// New returns an empty portfolio holding only cash.
func New(startingCash decimal.Decimal, now time.Time) Portfolio {
	return Portfolio{
		TotalValue:      startingCash,
		Cash:            startingCash,
		StartingCash:    startingCash,
		OpenPositions:   []Position{},
		ClosedPositions: []Position{},
		LastUpdated:     now,
	}
}

// OpenCount counts open positions on marketID.
func (p Portfolio) OpenCount(marketID string) int {
	n := 0
	for _, pos := range p.OpenPositions {
		if pos.MarketID == marketID {
			n++
		}
	}
	return n
}

// Position looks a trade up in either list.
func (p Portfolio) Position(tradeID string) (Position, bool) {
	for _, pos := range p.OpenPositions {
		if pos.TradeID == tradeID {
			return pos.clone(), true
		}
	}
	for _, pos := range p.ClosedPositions {
		if pos.TradeID == tradeID {
			return pos.clone(), true
		}
	}
	return Position{}, false
}

// Clone returns a deep copy.
func (p Portfolio) Clone() Portfolio {
	out := p
	out.OpenPositions = make([]Position, len(p.OpenPositions))
	for i, pos := range p.OpenPositions {
		out.OpenPositions[i] = pos.clone()
	}
	out.ClosedPositions = make([]Position, len(p.ClosedPositions))
	for i, pos := range p.ClosedPositions {
		out.ClosedPositions[i] = pos.clone()
	}
	return out
}

// normalize fills fields that older stored snapshots may lack.
func (p *Portfolio) normalize() {
	if p.OpenPositions == nil {
		p.OpenPositions = []Position{}
	}
	if p.ClosedPositions == nil {
		p.ClosedPositions = []Position{}
	}
	for i := range p.OpenPositions {
		if p.OpenPositions[i].MarkPrice.IsZero() {
			p.OpenPositions[i].MarkPrice = p.OpenPositions[i].EntryPrice
		}
	}
}

// recompute refreshes the derived totals from cash, positions and counters.
func (p *Portfolio) recompute() {
	value := p.Cash
	for _, pos := range p.OpenPositions {
		value = value.Add(pos.MarkValue())
	}
	p.TotalValue = value
	if p.TotalTrades > 0 {
		p.WinRate = float64(p.WinningTrades) / float64(p.TotalTrades)
	} else {
		p.WinRate = 0
	}
}
