package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"polyagent/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrPositionNotFound = errors.New("position not found")
	ErrAlreadyResolved  = errors.New("position already resolved")
	ErrInvalidOrder     = errors.New("invalid order")
	ErrInvalidPrice     = errors.New("final price must be within [0,1]")
	ErrPersist          = errors.New("portfolio persistence failed")
)

// Store persists whole portfolio snapshots. Load returns (nil, nil) when
// nothing has been stored yet. Save must be atomic: a failed Save leaves the
// previously saved snapshot intact.
type Store interface {
	Load(ctx context.Context) (*Portfolio, error)
	Save(ctx context.Context, p Portfolio) error
}

// Ledger is the single write path for the simulated portfolio. Mutations are
// serialised by one mutex, work on a copy, persist it, and only then publish
// it. Readers load the published copy without taking the lock.
type Ledger struct {
	mu    sync.Mutex
	store Store
	state atomic.Pointer[Portfolio]

	nowFn func() time.Time
	newID func() string
}

// NewLedger restores the stored portfolio, or creates and saves a fresh one
// holding startingCash.
func NewLedger(ctx context.Context, store Store, startingCash decimal.Decimal) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger requires a store")
	}
	l := &Ledger{
		store: store,
		nowFn: func() time.Time { return time.Now().UTC() },
		newID: func() string { return "trade_" + uuid.NewString() },
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}
	if loaded != nil {
		p := loaded.Clone()
		p.normalize()
		p.recompute()
		l.state.Store(&p)
		logger.Infof("portfolio restored: cash=%s open=%d closed=%d", p.Cash.StringFixed(2), len(p.OpenPositions), len(p.ClosedPositions))
		return l, nil
	}
	p := New(startingCash, l.nowFn())
	if err := store.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	l.state.Store(&p)
	logger.Infof("portfolio initialised: cash=%s", startingCash.StringFixed(2))
	return l, nil
}

// Snapshot returns a deep copy of the last published state. It never blocks on writers.
func (l *Ledger) Snapshot() Portfolio {
	return l.state.Load().Clone()
}

// Apply opens a position for order and debits its size from cash.
func (l *Ledger) Apply(ctx context.Context, order Order) (Position, error) {
	if err := validateOrder(&order); err != nil {
		return Position{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.state.Load()
	if order.Size.GreaterThan(cur.Cash) {
		return Position{}, fmt.Errorf("%w: size %s > cash %s", ErrInsufficientCash, order.Size.StringFixed(2), cur.Cash.StringFixed(2))
	}

	now := l.nowFn()
	pos := Position{
		TradeID:     l.newID(),
		MarketID:    order.MarketID,
		MarketTitle: order.MarketTitle,
		Side:        order.Side,
		Outcome:     order.Outcome,
		EntryPrice:  order.Price,
		Size:        order.Size,
		Shares:      order.Shares,
		MarkPrice:   order.Price,
		Confidence:  order.Confidence,
		Consensus:   order.Consensus,
		AgentVotes:  order.AgentVotes,
		ExecutedAt:  now,
		Status:      StatusOpen,
	}
	pos = pos.clone()

	next := cur.Clone()
	next.Cash = next.Cash.Sub(order.Size)
	next.OpenPositions = append(next.OpenPositions, pos)
	next.LastUpdated = now
	next.recompute()

	if err := l.commit(ctx, &next); err != nil {
		return Position{}, err
	}
	logger.Infof("position opened %s: %s %s %s size=%s price=%s shares=%s cash=%s",
		pos.TradeID, pos.Side, pos.MarketID, pos.Outcome, pos.Size.StringFixed(2), pos.EntryPrice.String(),
		pos.Shares.StringFixed(4), next.Cash.StringFixed(2))
	return pos.clone(), nil
}

// Resolve settles an open position. finalPrice is the settlement price of
// the position's own outcome. A favourable resolution realises
// (final-entry)*shares for a buy and (entry-final)*shares for a sell; an
// unfavourable one loses the full size. Cash is credited size+pnl.
func (l *Ledger) Resolve(ctx context.Context, tradeID, outcome string, finalPrice decimal.Decimal) (Position, error) {
	if finalPrice.IsNegative() || finalPrice.GreaterThan(decimal.NewFromInt(1)) {
		return Position{}, fmt.Errorf("%w: %s", ErrInvalidPrice, finalPrice.String())
	}
	if strings.TrimSpace(outcome) == "" {
		return Position{}, fmt.Errorf("resolve %s: outcome is required", tradeID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.state.Load()
	idx := -1
	for i, pos := range cur.OpenPositions {
		if pos.TradeID == tradeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		for _, pos := range cur.ClosedPositions {
			if pos.TradeID == tradeID {
				return Position{}, fmt.Errorf("%w: %s", ErrAlreadyResolved, tradeID)
			}
		}
		return Position{}, fmt.Errorf("%w: %s", ErrPositionNotFound, tradeID)
	}

	next := cur.Clone()
	pos := next.OpenPositions[idx]

	var pnl decimal.Decimal
	switch {
	case pos.favourable(outcome) && pos.Side == SideSell:
		pnl = pos.EntryPrice.Sub(finalPrice).Mul(pos.Shares)
	case pos.favourable(outcome):
		pnl = finalPrice.Sub(pos.EntryPrice).Mul(pos.Shares)
	default:
		pnl = pos.Size.Neg()
	}

	now := l.nowFn()
	pos.Status = StatusClosed
	pos.ResolvedOutcome = outcome
	pos.ExitPrice = finalPrice
	pos.MarkPrice = finalPrice
	pos.PnL = pnl
	pos.ClosedAt = &now

	next.OpenPositions = append(next.OpenPositions[:idx], next.OpenPositions[idx+1:]...)
	next.ClosedPositions = append(next.ClosedPositions, pos)
	next.Cash = next.Cash.Add(pos.Size).Add(pnl)
	next.TotalPnL = next.TotalPnL.Add(pnl)
	next.TotalTrades++
	if pnl.IsPositive() {
		next.WinningTrades++
	}
	next.LastUpdated = now
	next.recompute()

	if err := l.commit(ctx, &next); err != nil {
		return Position{}, err
	}
	logger.Infof("position resolved %s: outcome=%s final=%s pnl=%s cash=%s win_rate=%.2f",
		tradeID, outcome, finalPrice.String(), pnl.StringFixed(2), next.Cash.StringFixed(2), next.WinRate)
	return pos.clone(), nil
}

// Mark re-prices the open positions on marketID from fresh outcome prices.
// Positions whose outcome is not priced keep their previous mark.
func (l *Ledger) Mark(ctx context.Context, marketID string, prices map[string]float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.state.Load()
	next := cur.Clone()
	changed := false
	for i := range next.OpenPositions {
		pos := &next.OpenPositions[i]
		if pos.MarketID != marketID {
			continue
		}
		price, ok := lookupPrice(prices, pos.Outcome)
		if !ok || price < 0 || price > 1 {
			continue
		}
		mark := decimal.NewFromFloat(price)
		if mark.Equal(pos.MarkPrice) {
			continue
		}
		pos.MarkPrice = mark
		changed = true
	}
	if !changed {
		return nil
	}
	next.LastUpdated = l.nowFn()
	next.recompute()
	return l.commit(ctx, &next)
}

// Flush writes the current state to the store again.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.state.Load().Clone()
	if err := l.store.Save(ctx, cur); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func (l *Ledger) commit(ctx context.Context, next *Portfolio) error {
	if err := l.store.Save(ctx, next.Clone()); err != nil {
		logger.Errorf("portfolio save failed, state unchanged: %v", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	l.state.Store(next)
	return nil
}

func validateOrder(o *Order) error {
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, o.Side)
	}
	if strings.TrimSpace(o.MarketID) == "" {
		return fmt.Errorf("%w: market id is required", ErrInvalidOrder)
	}
	if !o.Size.IsPositive() {
		return fmt.Errorf("%w: size must be > 0", ErrInvalidOrder)
	}
	if !o.Price.IsPositive() || o.Price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: price %s outside (0,1)", ErrInvalidOrder, o.Price.String())
	}
	if o.Shares.IsZero() {
		o.Shares = o.Size.Div(o.Price)
	}
	return nil
}

func lookupPrice(prices map[string]float64, outcome string) (float64, bool) {
	if p, ok := prices[outcome]; ok {
		return p, true
	}
	for k, v := range prices {
		if strings.EqualFold(k, outcome) {
			return v, true
		}
	}
	return 0, false
}
