package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"polyagent/internal/market"
	"polyagent/internal/pkg/text"
)

var (
	researchPositive = []string{"likely", "probable", "increasing", "strong", "support", "good", "favor", "bullish", "winning", "leading"}
	researchNegative = []string{"unlikely", "declining", "weak", "against", "doubt", "bad", "bearish", "losing", "trailing"}

	sentimentPositive = []string{"positive", "bullish", "optimistic", "good", "strong", "confident", "winning", "up"}
	sentimentNegative = []string{"negative", "bearish", "pessimistic", "bad", "weak", "worried", "losing", "down"}
)

// Lexicon scores Snapshot.Context by counting distinct polarity words.
type Lexicon struct {
	name     string
	label    string
	positive []string
	negative []string
	step     float64
	ceiling  float64
}

func NewResearch() *Lexicon {
	return &Lexicon{name: NameResearch, label: "research", positive: researchPositive, negative: researchNegative, step: 0.05, ceiling: 0.95}
}

func NewSentiment() *Lexicon {
	return &Lexicon{name: NameSentiment, label: "sentiment", positive: sentimentPositive, negative: sentimentNegative, step: 0.04, ceiling: 0.92}
}

func (l *Lexicon) Name() string { return l.name }

func (l *Lexicon) Evaluate(_ context.Context, snap market.Snapshot) Opinion {
	ctxText := strings.TrimSpace(snap.Context)
	if ctxText == "" {
		return NoSignal(l.name, "no external context available", "no external context")
	}
	words := wordSet(ctxText)
	pos := countPresent(words, l.positive)
	neg := countPresent(words, l.negative)
	counts := fmt.Sprintf("%s: %d positive vs %d negative signals", l.label, pos, neg)
	reasoning := text.Truncate(ctxText, 200)

	switch {
	case pos > neg:
		conf := math.Min(l.ceiling, 0.70+l.step*float64(pos))
		return NewOpinion(l.name, StanceBuy, conf, reasoning, []string{counts}, nil)
	case neg > pos:
		conf := math.Min(l.ceiling, 0.70+l.step*float64(neg))
		return NewOpinion(l.name, StanceSell, conf, reasoning, nil, []string{counts})
	default:
		return NewOpinion(l.name, StanceHold, 0.3, reasoning, nil, []string{"Mixed " + counts})
	}
}

func wordSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

func countPresent(words map[string]struct{}, lexicon []string) int {
	n := 0
	for _, w := range lexicon {
		if _, ok := words[w]; ok {
			n++
		}
	}
	return n
}
