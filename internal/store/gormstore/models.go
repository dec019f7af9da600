package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"polyagent/internal/portfolio"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const accountRowID = 1

// accountModel holds the single cash/counter row of the portfolio.
type accountModel struct {
	ID              int64   `gorm:"column:id;primaryKey"`
	Cash            string  `gorm:"column:cash"`
	StartingCash    string  `gorm:"column:starting_cash"`
	TotalPnL        string  `gorm:"column:total_pnl"`
	TotalValue      string  `gorm:"column:total_value"`
	TotalTrades     int     `gorm:"column:total_trades"`
	WinningTrades   int     `gorm:"column:winning_trades"`
	WinRate         float64 `gorm:"column:win_rate"`
	LastUpdatedUnix int64   `gorm:"column:last_updated"`
}

func (accountModel) TableName() string { return "portfolio_account" }

// positionModel stores decimals as TEXT so no precision is lost to REAL.
type positionModel struct {
	TradeID         string         `gorm:"column:trade_id;primaryKey"`
	Seq             int            `gorm:"column:seq;index"`
	MarketID        string         `gorm:"column:market_id;index"`
	MarketTitle     string         `gorm:"column:market_title"`
	Side            string         `gorm:"column:side"`
	Outcome         string         `gorm:"column:outcome"`
	EntryPrice      string         `gorm:"column:entry_price"`
	Size            string         `gorm:"column:size"`
	Shares          string         `gorm:"column:shares"`
	MarkPrice       string         `gorm:"column:mark_price"`
	Confidence      float64        `gorm:"column:confidence"`
	Consensus       float64        `gorm:"column:consensus"`
	AgentVotes      datatypes.JSON `gorm:"column:agent_votes;type:TEXT"`
	ExecutedAtUnix  int64          `gorm:"column:executed_at"`
	Status          string         `gorm:"column:status;index"`
	ResolvedOutcome string         `gorm:"column:resolved_outcome"`
	ExitPrice       string         `gorm:"column:exit_price"`
	PnL             string         `gorm:"column:pnl"`
	ClosedAtUnix    *int64         `gorm:"column:closed_at"`
}

func (positionModel) TableName() string { return "portfolio_positions" }

func newAccountModel(p portfolio.Portfolio) accountModel {
	return accountModel{
		ID:              accountRowID,
		Cash:            p.Cash.String(),
		StartingCash:    p.StartingCash.String(),
		TotalPnL:        p.TotalPnL.String(),
		TotalValue:      p.TotalValue.String(),
		TotalTrades:     p.TotalTrades,
		WinningTrades:   p.WinningTrades,
		WinRate:         p.WinRate,
		LastUpdatedUnix: p.LastUpdated.UnixNano(),
	}
}

func newPositionModel(seq int, pos portfolio.Position) (positionModel, error) {
	m := positionModel{
		TradeID:         pos.TradeID,
		Seq:             seq,
		MarketID:        pos.MarketID,
		MarketTitle:     pos.MarketTitle,
		Side:            string(pos.Side),
		Outcome:         pos.Outcome,
		EntryPrice:      pos.EntryPrice.String(),
		Size:            pos.Size.String(),
		Shares:          pos.Shares.String(),
		MarkPrice:       pos.MarkPrice.String(),
		Confidence:      pos.Confidence,
		Consensus:       pos.Consensus,
		ExecutedAtUnix:  pos.ExecutedAt.UnixNano(),
		Status:          string(pos.Status),
		ResolvedOutcome: pos.ResolvedOutcome,
		ExitPrice:       pos.ExitPrice.String(),
		PnL:             pos.PnL.String(),
	}
	if len(pos.AgentVotes) > 0 {
		raw, err := json.Marshal(pos.AgentVotes)
		if err != nil {
			return positionModel{}, fmt.Errorf("encode agent votes for %s: %w", pos.TradeID, err)
		}
		m.AgentVotes = datatypes.JSON(raw)
	}
	if pos.ClosedAt != nil {
		v := pos.ClosedAt.UnixNano()
		m.ClosedAtUnix = &v
	}
	return m, nil
}

func (m positionModel) toPosition() (portfolio.Position, error) {
	pos := portfolio.Position{
		TradeID:         m.TradeID,
		MarketID:        m.MarketID,
		MarketTitle:     m.MarketTitle,
		Side:            portfolio.Side(m.Side),
		Outcome:         m.Outcome,
		Confidence:      m.Confidence,
		Consensus:       m.Consensus,
		ExecutedAt:      time.Unix(0, m.ExecutedAtUnix).UTC(),
		Status:          portfolio.Status(m.Status),
		ResolvedOutcome: m.ResolvedOutcome,
	}
	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{m.EntryPrice, &pos.EntryPrice},
		{m.Size, &pos.Size},
		{m.Shares, &pos.Shares},
		{m.MarkPrice, &pos.MarkPrice},
		{m.ExitPrice, &pos.ExitPrice},
		{m.PnL, &pos.PnL},
	}
	for _, f := range fields {
		d, err := parseDecimal(f.raw)
		if err != nil {
			return portfolio.Position{}, fmt.Errorf("position %s: %w", m.TradeID, err)
		}
		*f.dst = d
	}
	if len(m.AgentVotes) > 0 {
		if err := json.Unmarshal(m.AgentVotes, &pos.AgentVotes); err != nil {
			return portfolio.Position{}, fmt.Errorf("decode agent votes for %s: %w", m.TradeID, err)
		}
	}
	if m.ClosedAtUnix != nil {
		t := time.Unix(0, *m.ClosedAtUnix).UTC()
		pos.ClosedAt = &t
	}
	return pos, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
