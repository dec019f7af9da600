package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"polyagent/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedProvider struct {
	name string
	op   Opinion
}

func (f fixedProvider) Name() string { return f.name }
func (f fixedProvider) Evaluate(context.Context, market.Snapshot) Opinion {
	return f.op
}

type blockingProvider struct{ release chan struct{} }

func (b blockingProvider) Name() string { return "slow" }
func (b blockingProvider) Evaluate(context.Context, market.Snapshot) Opinion {
	<-b.release
	return NewOpinion("slow", StanceBuy, 1, "", nil, nil)
}

type panickingProvider struct{}

func (panickingProvider) Name() string { return "broken" }
func (panickingProvider) Evaluate(context.Context, market.Snapshot) Opinion {
	panic("boom")
}

func TestPanelKeepsOrderAndDegradesSlowProviders(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var (
		mu     sync.Mutex
		failed []string
	)
	panel := NewPanel([]Provider{
		fixedProvider{name: "a", op: NewOpinion("ignored", StanceBuy, 0.8, "", nil, nil)},
		blockingProvider{release: release},
		panickingProvider{},
		fixedProvider{name: "d", op: NewOpinion("d", StanceSell, 0.6, "", nil, nil)},
	}, 20*time.Millisecond)
	panel.SetFailureHook(func(provider string, err error) {
		mu.Lock()
		failed = append(failed, provider)
		mu.Unlock()
	})

	start := time.Now()
	ops := panel.Evaluate(context.Background(), market.Snapshot{ID: "m"})
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, ops, 4)
	assert.Equal(t, "a", ops[0].Provider)
	assert.Equal(t, StanceBuy, ops[0].Stance)

	assert.Equal(t, "slow", ops[1].Provider)
	assert.Equal(t, StanceHold, ops[1].Stance)
	assert.Equal(t, 0.0, ops[1].Confidence)
	assert.Equal(t, []string{"provider timeout"}, ops[1].Risks)

	assert.Equal(t, "broken", ops[2].Provider)
	assert.Equal(t, StanceHold, ops[2].Stance)
	assert.Equal(t, []string{"provider failed"}, ops[2].Risks)

	assert.Equal(t, StanceSell, ops[3].Stance)
	assert.Equal(t, []string{"a", "slow", "broken", "d"}, panel.Names())

	mu.Lock()
	assert.ElementsMatch(t, []string{"slow", "broken"}, failed)
	mu.Unlock()
}
