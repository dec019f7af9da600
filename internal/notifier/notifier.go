package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"polyagent/internal/logger"
	"polyagent/internal/portfolio"
)

// TextNotifier sends one plain message.
type TextNotifier interface {
	SendText(text string) error
}

// Trades turns ledger events into messages. A nil sender makes it a no-op.
type Trades struct {
	sender TextNotifier
	nowFn  func() time.Time
}

func NewTrades(sender TextNotifier) *Trades {
	return &Trades{sender: sender, nowFn: time.Now}
}

func (t *Trades) Enabled() bool { return t != nil && t.sender != nil }

// NotifyExecuted reports a freshly opened position. Send failures are logged only.
func (t *Trades) NotifyExecuted(pos portfolio.Position) {
	if !t.Enabled() {
		return
	}
	msg := StructuredMessage{
		Icon:  "🟢",
		Title: fmt.Sprintf("Paper trade %s %s", strings.ToUpper(string(pos.Side)), pos.Outcome),
		Sections: []MessageSection{
			{Title: "Market", Lines: []string{marketLine(pos)}},
			{Title: "Order", Lines: []string{
				"size: $" + pos.Size.StringFixed(2),
				"price: " + pos.EntryPrice.StringFixed(4),
				"shares: " + pos.Shares.StringFixed(4),
				fmt.Sprintf("confidence: %.2f consensus: %.2f", pos.Confidence, pos.Consensus),
			}},
			{Title: "Votes", Lines: voteLines(pos.AgentVotes)},
		},
		Footer:    "trade " + pos.TradeID,
		Timestamp: t.nowFn(),
	}
	t.send(msg)
}

// NotifyResolved reports a closed position and its pnl.
func (t *Trades) NotifyResolved(pos portfolio.Position) {
	if !t.Enabled() {
		return
	}
	icon := "🔴"
	if pos.PnL.IsPositive() {
		icon = "✅"
	}
	msg := StructuredMessage{
		Icon:  icon,
		Title: "Position resolved: " + pos.ResolvedOutcome,
		Sections: []MessageSection{
			{Title: "Market", Lines: []string{marketLine(pos)}},
			{Title: "Result", Lines: []string{
				fmt.Sprintf("%s %s @ %s", strings.ToUpper(string(pos.Side)), pos.Outcome, pos.EntryPrice.StringFixed(4)),
				"exit: " + pos.ExitPrice.StringFixed(4),
				"pnl: $" + pos.PnL.StringFixed(2),
			}},
		},
		Footer:    "trade " + pos.TradeID,
		Timestamp: t.nowFn(),
	}
	t.send(msg)
}

func (t *Trades) send(msg StructuredMessage) {
	if err := t.sender.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("notify failed: %v", err)
	}
}

func marketLine(pos portfolio.Position) string {
	if strings.TrimSpace(pos.MarketTitle) == "" {
		return pos.MarketID
	}
	return pos.MarketTitle + " (" + pos.MarketID + ")"
}

func voteLines(votes map[string]string) []string {
	names := make([]string, 0, len(votes))
	for name := range votes {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name+": "+votes[name])
	}
	return out
}
