package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mindmesh/mindmesh/internal/backend"
	"github.com/mindmesh/mindmesh/internal/budget"
	"github.com/mindmesh/mindmesh/internal/executor"
	"github.com/mindmesh/mindmesh/internal/planner"
	"github.com/mindmesh/mindmesh/internal/prompt"
	"github.com/mindmesh/mindmesh/internal/router"
	"github.com/mindmesh/mindmesh/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestEngine(t *testing.T) (*Engine, map[models.BackendTier]*backend.MockClient) {
	t.Helper()

	cfg := backend.DefaultMockConfig()
	cfg.MinLatency = time.Millisecond
	cfg.MaxLatency = 2 * time.Millisecond
	cfg.Seed = 11

	mocks := map[models.BackendTier]*backend.MockClient{
		models.BackendSmall:  backend.NewMockClient(models.BackendSmall, cfg),
		models.BackendMedium: backend.NewMockClient(models.BackendMedium, cfg),
		models.BackendLarge:  backend.NewMockClient(models.BackendLarge, cfg),
	}
	clients := map[models.BackendTier]backend.Client{
		models.BackendSmall:  mocks[models.BackendSmall],
		models.BackendMedium: mocks[models.BackendMedium],
		models.BackendLarge:  mocks[models.BackendLarge],
	}

	configs := models.DefaultTierConfigs()
	tr := router.New(clients, budget.New(15.0), configs)
	ex := executor.New(tr, prompt.NewBuilder(nil, nil), nil, configs)
	en := New(planner.New(planner.DefaultThresholds()), ex, tr, Options{
		SynthesisInterval: 50 * time.Millisecond,
		CleanupInterval:   time.Minute,
	})
	t.Cleanup(func() { en.Close() })
	return en, mocks
}

func TestProcessUrgentRelevantStimulus(t *testing.T) {
	en, _ := newTestEngine(t)

	res, err := en.Process(context.Background(), "agent-1", "production is on fire and customers are blocked", 0.95, 0.6, 0.9)
	require.NoError(t, err)

	assert.Equal(t, []models.CognitiveTier{models.TierReflex, models.TierReactive, models.TierDeliberate}, res.TiersUsed)
	require.NotEmpty(t, res.Thoughts)
	assert.Equal(t, models.TierReflex, res.Thoughts[0].Tier)
	require.NotNil(t, res.PrimaryThought)

	// REFLEX + 2 parallel REACTIVE + DELIBERATE
	assert.Len(t, res.Thoughts, 4)
}

func TestProcessCalmComplexStimulus(t *testing.T) {
	en, _ := newTestEngine(t)

	res, err := en.Process(context.Background(), "agent-1", "long term architecture direction for the data platform", 0.2, 0.85, 0.8)
	require.NoError(t, err)

	assert.Equal(t, []models.CognitiveTier{models.TierDeliberate, models.TierAnalytical}, res.TiersUsed)
	for _, th := range res.Thoughts {
		assert.NotEqual(t, models.TierReflex, th.Tier)
	}
}

func TestProcessIrrelevantStimulus(t *testing.T) {
	en, mocks := newTestEngine(t)
	// Pin the SMALL backend so the single REFLEX thought classifies as
	// an observation rather than whatever canned text comes up.
	mocks[models.BackendSmall].SetFixedResponse("noticed the remark, filing it for later")

	res, err := en.Process(context.Background(), "agent-1", "someone mentioned the weather in passing", 0.3, 0.1, 0.2)
	require.NoError(t, err)

	assert.Equal(t, []models.CognitiveTier{models.TierReflex}, res.TiersUsed)
	require.Len(t, res.Thoughts, 1)
	assert.Contains(t, []models.ThoughtType{models.ThoughtReaction, models.ThoughtObservation}, res.Thoughts[0].Type)
}

func TestProcessSurvivesUnhealthyLarge(t *testing.T) {
	en, mocks := newTestEngine(t)
	mocks[models.BackendLarge].SetHealthy(false)
	en.router.CheckHealth(context.Background())

	res, err := en.Process(context.Background(), "agent-1", "think hard about this design question", 0.2, 0.85, 0.8)
	require.NoError(t, err)
	require.NotEmpty(t, res.Thoughts)
	assert.Zero(t, mocks[models.BackendLarge].CallCount())
}

func TestProcessAllBackendsDownYieldsEmptyResult(t *testing.T) {
	en, mocks := newTestEngine(t)
	for _, m := range mocks {
		m.SetHealthy(false)
	}
	en.router.CheckHealth(context.Background())

	res, err := en.Process(context.Background(), "agent-1", "anything at all", 0.5, 0.5, 0.5)
	require.NoError(t, err)
	assert.Empty(t, res.Thoughts)
	assert.Nil(t, res.PrimaryThought)
}

func TestProcessEmptyStimulus(t *testing.T) {
	en, _ := newTestEngine(t)

	_, err := en.Process(context.Background(), "agent-1", "   ", 0.5, 0.5, 0.5)
	assert.ErrorIs(t, err, ErrEmptyStimulus)
}

func TestMindStateAfterProcessing(t *testing.T) {
	en, _ := newTestEngine(t)

	_, err := en.Process(context.Background(), "agent-1", "the cache needs attention", 0.5, 0.3, 0.6)
	require.NoError(t, err)

	state, err := en.MindState("agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", state.AgentID)
	assert.Greater(t, state.ActiveThoughtCount, 0)
	assert.Greater(t, state.StreamCount, 0)
}

func TestMindStateUnknownAgent(t *testing.T) {
	en, _ := newTestEngine(t)

	_, err := en.MindState("nobody")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestInvalidateAbout(t *testing.T) {
	en, _ := newTestEngine(t)

	_, err := en.Process(context.Background(), "agent-1", "we must rework the billing pipeline", 0.5, 0.3, 0.6)
	require.NoError(t, err)

	before, err := en.MindState("agent-1")
	require.NoError(t, err)
	require.Greater(t, before.ActiveThoughtCount, 0)

	// Topic matching is a substring check, so the empty topic matches
	// every thought regardless of what the mock backend said.
	n, err := en.InvalidateAbout("agent-1", "")
	require.NoError(t, err)
	assert.Equal(t, before.ActiveThoughtCount, n)

	after, err := en.MindState("agent-1")
	require.NoError(t, err)
	assert.Zero(t, after.ActiveThoughtCount)
}

func TestSynthesisEndToEnd(t *testing.T) {
	en, mocks := newTestEngine(t)

	// Pin the MEDIUM backend so all three thoughts share a topic and
	// land in one stream; the scheduler then synthesizes it through the
	// DELIBERATE tier.
	mocks[models.BackendMedium].SetFixedResponse("search ranking drift traces back to the stale feature index")
	for i := 0; i < 3; i++ {
		_, err := en.Process(context.Background(), "agent-1", "search ranking keeps degrading slowly", 0.5, 0.3, 0.6)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		state, err := en.MindState("agent-1")
		if err != nil {
			return false
		}
		for _, s := range state.Streams {
			if s.HasSynthesis {
				return true
			}
		}
		return false
	}, 3*time.Second, 25*time.Millisecond)
}

func TestProcessRecordsBudgetUsage(t *testing.T) {
	en, _ := newTestEngine(t)

	_, err := en.Process(context.Background(), "agent-9", "an everyday question", 0.5, 0.3, 0.6)
	require.NoError(t, err)

	st := en.BudgetStatus()
	assert.Greater(t, st.TotalCostUSD, 0.0)
	require.NotEmpty(t, st.TopAgents)
	assert.Equal(t, "agent-9", st.TopAgents[0].AgentID)
}
