package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrimaryOutcome(t *testing.T) {
	assert.Equal(t, "Trump", Snapshot{Outcomes: []string{"Trump", "Harris"}}.PrimaryOutcome())
	assert.Equal(t, "Yes", Snapshot{Prices: map[string]float64{"No": 0.4, "Yes": 0.6}}.PrimaryOutcome())
	assert.Equal(t, "A", Snapshot{Prices: map[string]float64{"B": 0.4, "A": 0.6}}.PrimaryOutcome())
	assert.Equal(t, "", Snapshot{}.PrimaryOutcome())
}

func TestMarginAndPriceOf(t *testing.T) {
	s := Snapshot{Prices: map[string]float64{"Yes": 0.72, "No": 0.30}}
	assert.InDelta(t, 0.02, s.Margin(), 1e-9)
	p, ok := s.PriceOf("yes")
	assert.True(t, ok)
	assert.Equal(t, 0.72, p)
	_, ok = s.PriceOf("maybe")
	assert.False(t, ok)
	assert.Equal(t, 0.0, Snapshot{}.Margin())
}

func TestValidate(t *testing.T) {
	ok := Snapshot{ID: "m", Title: "T", Prices: map[string]float64{"Yes": 0.5}}
	assert.NoError(t, ok.Validate())

	noID := ok
	noID.ID = ""
	assert.Error(t, noID.Validate())

	badPrice := ok
	badPrice.Prices = map[string]float64{"Yes": 1.2}
	assert.Error(t, badPrice.Validate())
}

func TestWithContextDoesNotMutate(t *testing.T) {
	s := Snapshot{ID: "m", Context: "base", Prices: map[string]float64{"Yes": 0.5}}
	out := s.WithContext("extra")
	assert.Equal(t, "base", s.Context)
	assert.Equal(t, "base\n\nextra", out.Context)
	out.Prices["Yes"] = 0.9
	assert.Equal(t, 0.5, s.Prices["Yes"])
	assert.Equal(t, s, s.WithContext("  "))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "will-bitcoin-reach-100k-in-2025", Slugify("Will Bitcoin reach $100k in 2025?"))
	assert.Equal(t, "", Slugify("  ?? "))
}
