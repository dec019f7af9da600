package market

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Snapshot is one collected view of a prediction market. The engine never mutates it.
type Snapshot struct {
	ID            string             `json:"id" yaml:"id"`
	Title         string             `json:"title" yaml:"title"`
	Category      string             `json:"category,omitempty" yaml:"category"`
	URL           string             `json:"url,omitempty" yaml:"url"`
	Outcomes      []string           `json:"outcomes" yaml:"outcomes"`
	Prices        map[string]float64 `json:"prices" yaml:"prices"`
	Volume24h     float64            `json:"volume_24h" yaml:"volume_24h"`
	Liquidity     float64            `json:"liquidity" yaml:"liquidity"`
	Traders       int                `json:"traders,omitempty" yaml:"traders"`
	TimeRemaining string             `json:"time_remaining,omitempty" yaml:"time_remaining"`
	EndDate       string             `json:"end_date,omitempty" yaml:"end_date"`
	Description   string             `json:"description,omitempty" yaml:"description"`
	Context       string             `json:"context,omitempty" yaml:"context"`
	CollectedAt   time.Time          `json:"collected_at" yaml:"-"`
}

// PrimaryOutcome is the outcome the engine trades: the first listed outcome,
// else "Yes" when priced, else the lexicographically first priced outcome.
func (s Snapshot) PrimaryOutcome() string {
	for _, o := range s.Outcomes {
		if strings.TrimSpace(o) != "" {
			return o
		}
	}
	if _, ok := s.Prices["Yes"]; ok {
		return "Yes"
	}
	if len(s.Prices) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s.Prices))
	for k := range s.Prices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

// PriceOf returns the price of outcome and whether it is known.
func (s Snapshot) PriceOf(outcome string) (float64, bool) {
	p, ok := s.Prices[outcome]
	if ok {
		return p, true
	}
	for k, v := range s.Prices {
		if strings.EqualFold(k, outcome) {
			return v, true
		}
	}
	return 0, false
}

// PriceSum is the sum of all outcome prices.
func (s Snapshot) PriceSum() float64 {
	var sum float64
	for _, p := range s.Prices {
		sum += p
	}
	return sum
}

// Margin is the sum of outcome prices minus one.
func (s Snapshot) Margin() float64 {
	if len(s.Prices) == 0 {
		return 0
	}
	return s.PriceSum() - 1
}

func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("snapshot id is required")
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("snapshot %s: title is required", s.ID)
	}
	for outcome, p := range s.Prices {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("snapshot %s: price for %q out of range: %v", s.ID, outcome, p)
		}
	}
	if s.Volume24h < 0 || s.Liquidity < 0 {
		return fmt.Errorf("snapshot %s: volume and liquidity must be >= 0", s.ID)
	}
	return nil
}

// WithContext returns a copy of s whose Context has extra appended.
func (s Snapshot) WithContext(extra string) Snapshot {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return s
	}
	out := s.clone()
	if strings.TrimSpace(out.Context) == "" {
		out.Context = extra
	} else {
		out.Context = out.Context + "\n\n" + extra
	}
	return out
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Outcomes = append([]string(nil), s.Outcomes...)
	if s.Prices != nil {
		out.Prices = make(map[string]float64, len(s.Prices))
		for k, v := range s.Prices {
			out.Prices[k] = v
		}
	}
	return out
}

// Slugify turns a free-text query into a market identifier.
func Slugify(query string) string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "-")
}
