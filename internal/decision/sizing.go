package decision

import "github.com/shopspring/decimal"

// Size applies the fractional Kelly rule: edge e = confidence - breakEven;
// no trade when e <= minEdge, else min(e * kellyFraction, sizeCap).
// A zero size is a valid outcome, not an error.
func Size(confidence, breakEven decimal.Decimal, cfg Config) (edge, size decimal.Decimal) {
	edge = confidence.Sub(breakEven)
	if edge.LessThanOrEqual(decimal.NewFromFloat(cfg.MinEdge)) {
		return edge, decimal.Zero
	}
	size = edge.Mul(decimal.NewFromFloat(cfg.KellyFraction))
	sizeCap := decimal.NewFromFloat(cfg.SizeCap)
	if size.GreaterThan(sizeCap) {
		size = sizeCap
	}
	return edge, size
}
