package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("market not found")
	ErrCollection = errors.New("market collection failed")
	// ErrBadPayload marks a reachable source that returned an unusable market.
	// It always travels together with ErrCollection.
	ErrBadPayload = errors.New("malformed market payload")
)

func badPayload(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrCollection, ErrBadPayload, fmt.Sprintf(format, args...))
}

// Collector supplies a snapshot for a market identifier or search query.
// Implementations fail with ErrNotFound or ErrCollection.
type Collector interface {
	Collect(ctx context.Context, query string) (Snapshot, error)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(ctx context.Context, query string) (Snapshot, error)

func (f CollectorFunc) Collect(ctx context.Context, query string) (Snapshot, error) {
	return f(ctx, query)
}

// StaticCollector returns a fixed liquid binary market for any query. Used for paper runs.
type StaticCollector struct {
	nowFn func() time.Time
}

func NewStaticCollector() *StaticCollector {
	return &StaticCollector{nowFn: time.Now}
}

func (c *StaticCollector) Collect(ctx context.Context, query string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCollection, err)
	}
	query = strings.TrimSpace(query)
	id := Slugify(query)
	if id == "" {
		return Snapshot{}, fmt.Errorf("%w: empty query", ErrNotFound)
	}
	return Snapshot{
		ID:          id,
		Title:       query,
		Outcomes:    []string{"Yes", "No"},
		Prices:      map[string]float64{"Yes": 0.65, "No": 0.35},
		Volume24h:   1_000_000,
		Liquidity:   500_000,
		CollectedAt: c.nowFn().UTC(),
	}, nil
}
