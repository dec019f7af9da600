package decision

import (
	"fmt"
	"strings"

	"polyagent/internal/pkg/text"
)

// Summary renders d as a short plain-text block for logs.
func (d Decision) Summary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== decision %s ===\n", d.MarketID))
	sb.WriteString(fmt.Sprintf("stance=%s outcome=%s price=%.3f score=%+.3f confidence=%.3f consensus=%.2f edge=%+.3f size=%.2f%%\n",
		d.Stance, d.Outcome, d.Price, d.Score, d.AggregateConfidence, d.ConsensusLevel, d.Edge, d.SuggestedSize*100))
	for _, op := range d.Opinions {
		sb.WriteString(fmt.Sprintf("- [%s] %s %.2f %s\n", op.Provider, op.Stance, op.Confidence, text.Truncate(op.Reasoning, 80)))
	}
	if len(d.RiskFactors) > 0 {
		sb.WriteString("risks: " + strings.Join(d.RiskFactors, "; "))
	}
	return strings.TrimRight(sb.String(), "\n")
}
