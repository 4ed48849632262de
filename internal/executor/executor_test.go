package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmesh/mindmesh/internal/prompt"
	"github.com/mindmesh/mindmesh/pkg/models"
)

// fakeRouter returns scripted responses keyed by purpose substring, and
// records the requests it saw.
type fakeRouter struct {
	mu        sync.Mutex
	requests  []models.InferenceRequest
	purposes  []string
	responses map[string]string
	failOn    map[models.CognitiveTier]error
	tokens    int
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		responses: make(map[string]string),
		failOn:    make(map[models.CognitiveTier]error),
		tokens:    100,
	}
}

func (f *fakeRouter) Route(ctx context.Context, tier models.CognitiveTier, req models.InferenceRequest, agentID string) (*models.InferenceResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := f.failOn[tier]; err != nil {
		return nil, err
	}

	text := "a clear and confident thought"
	for key, v := range f.responses {
		if strings.Contains(req.Prompt, key) {
			text = v
		}
	}
	return &models.InferenceResponse{
		Text:             text,
		CompletionTokens: f.tokens,
		TotalTokens:      f.tokens + 20,
		Backend:          models.BackendSmall,
	}, nil
}

func newTestExecutor(r Router) *Executor {
	return New(r, prompt.NewBuilder(nil, nil), nil, models.DefaultTierConfigs())
}

func stim(content string) models.Stimulus {
	return models.Stimulus{Content: content}
}

func TestExecuteSequentialSteps(t *testing.T) {
	fr := newFakeRouter()
	e := newTestExecutor(fr)

	steps := []models.Step{
		{Tier: models.TierReflex, Purpose: "immediate_response", Replicas: 1},
		{Tier: models.TierDeliberate, Purpose: "deeper_analysis", Replicas: 1},
	}
	res, err := e.Execute(context.Background(), "agent-1", stim("deploy failed"), steps, prompt.Context{})
	require.NoError(t, err)
	require.Len(t, res.Thoughts, 2)

	assert.Equal(t, models.TierReflex, res.Thoughts[0].Tier)
	assert.Equal(t, models.TierDeliberate, res.Thoughts[1].Tier)
	assert.Equal(t, []models.CognitiveTier{models.TierReflex, models.TierDeliberate}, res.TiersUsed)
	assert.Equal(t, "immediate_response", res.Thoughts[0].Trigger)
	assert.True(t, res.Thoughts[0].StillRelevant)
}

func TestExecuteParallelReplicas(t *testing.T) {
	fr := newFakeRouter()
	e := newTestExecutor(fr)

	steps := []models.Step{
		{Tier: models.TierReactive, Purpose: "tactical_assessment", Parallel: true, Replicas: 2},
	}
	res, err := e.Execute(context.Background(), "agent-1", stim("incoming"), steps, prompt.Context{})
	require.NoError(t, err)
	require.Len(t, res.Thoughts, 2)

	assert.Equal(t, "tactical_assessment_0", res.Thoughts[0].Trigger)
	assert.Equal(t, "tactical_assessment_1", res.Thoughts[1].Trigger)
	// One tier entry for the whole step, not one per replica.
	assert.Equal(t, []models.CognitiveTier{models.TierReactive}, res.TiersUsed)
}

func TestExecuteParallelReplicaFailureKeepsSiblings(t *testing.T) {
	fr := newFakeRouter()
	e := newTestExecutor(fr)

	// Fail only the first replica by prompt content marker.
	var calls int
	var mu sync.Mutex
	r := routeFunc(func(ctx context.Context, tier models.CognitiveTier, req models.InferenceRequest, agentID string) (*models.InferenceResponse, error) {
		mu.Lock()
		calls++
		first := strings.Contains(req.Prompt, "_0")
		mu.Unlock()
		if first {
			return nil, errors.New("replica down")
		}
		return fr.Route(ctx, tier, req, agentID)
	})
	e = newTestExecutor(r)

	steps := []models.Step{
		{Tier: models.TierReactive, Purpose: "tactical_assessment", Parallel: true, Replicas: 2},
	}
	res, err := e.Execute(context.Background(), "agent-1", stim("incoming"), steps, prompt.Context{})
	require.NoError(t, err)
	require.Len(t, res.Thoughts, 1)
	assert.Equal(t, "tactical_assessment_1", res.Thoughts[0].Trigger)
	assert.Equal(t, 2, calls)
}

type routeFunc func(ctx context.Context, tier models.CognitiveTier, req models.InferenceRequest, agentID string) (*models.InferenceResponse, error)

func (f routeFunc) Route(ctx context.Context, tier models.CognitiveTier, req models.InferenceRequest, agentID string) (*models.InferenceResponse, error) {
	return f(ctx, tier, req, agentID)
}

func TestExecuteFailedStepSkipped(t *testing.T) {
	fr := newFakeRouter()
	fr.failOn[models.TierDeliberate] = errors.New("backend gone")
	e := newTestExecutor(fr)

	steps := []models.Step{
		{Tier: models.TierReflex, Purpose: "immediate_response", Replicas: 1},
		{Tier: models.TierDeliberate, Purpose: "deeper_analysis", Replicas: 1},
	}
	res, err := e.Execute(context.Background(), "agent-1", stim("x"), steps, prompt.Context{})
	require.NoError(t, err)
	require.Len(t, res.Thoughts, 1)
	assert.Equal(t, []models.CognitiveTier{models.TierReflex}, res.TiersUsed)
}

func TestExecuteAllStepsFailedIsEmptyNotError(t *testing.T) {
	fr := newFakeRouter()
	for _, tier := range models.AllCognitiveTiers {
		fr.failOn[tier] = errors.New("everything down")
	}
	e := newTestExecutor(fr)

	res, err := e.Execute(context.Background(), "agent-1", stim("x"), []models.Step{
		{Tier: models.TierReflex, Purpose: "immediate_response", Replicas: 1},
	}, prompt.Context{})
	require.NoError(t, err)
	assert.Empty(t, res.Thoughts)
	assert.Nil(t, res.PrimaryThought)
	assert.Empty(t, res.TiersUsed)
}

func TestRelatedThoughtIDs(t *testing.T) {
	fr := newFakeRouter()
	e := newTestExecutor(fr)

	steps := []models.Step{
		{Tier: models.TierReflex, Purpose: "a", Replicas: 1},
		{Tier: models.TierReactive, Purpose: "b", Replicas: 1},
		{Tier: models.TierDeliberate, Purpose: "c", Replicas: 1},
	}
	res, err := e.Execute(context.Background(), "agent-1", stim("x"), steps, prompt.Context{})
	require.NoError(t, err)
	require.Len(t, res.Thoughts, 3)

	assert.Empty(t, res.Thoughts[0].RelatedThoughtIDs)
	assert.Equal(t, []uuid.UUID{res.Thoughts[0].ID}, res.Thoughts[1].RelatedThoughtIDs)
	assert.Equal(t, []uuid.UUID{res.Thoughts[0].ID, res.Thoughts[1].ID}, res.Thoughts[2].RelatedThoughtIDs)
}

func TestPrimaryPrefersDeeperConfidentThoughts(t *testing.T) {
	fr := newFakeRouter()
	e := newTestExecutor(fr)

	steps := []models.Step{
		{Tier: models.TierReflex, Purpose: "immediate_response", Replicas: 1},
		{Tier: models.TierDeliberate, Purpose: "deeper_analysis", Replicas: 1},
	}
	res, err := e.Execute(context.Background(), "agent-1", stim("x"), steps, prompt.Context{})
	require.NoError(t, err)
	require.NotNil(t, res.PrimaryThought)
	assert.Equal(t, models.TierDeliberate, res.PrimaryThought.Tier)
}

func TestPrimaryDepthOutweighsCompleteness(t *testing.T) {
	// One tier of depth is worth 0.4; a completeness gap can move the
	// score by at most 0.3, so the deeper thought wins even when the
	// shallower one is far more complete.
	shallow := models.Thought{Tier: models.TierReactive, Confidence: 0.6, Completeness: 0.9}
	deep := models.Thought{Tier: models.TierDeliberate, Confidence: 0.6, Completeness: 0.4}

	primary := pickPrimary([]models.Thought{shallow, deep})
	require.NotNil(t, primary)
	assert.Equal(t, models.TierDeliberate, primary.Tier)

	assert.InDelta(t, 0.4*2+0.3*0.6+0.3*0.4, primaryScore(deep), 1e-9)
	assert.InDelta(t, 0.4*1+0.3*0.6+0.3*0.9, primaryScore(shallow), 1e-9)
}

func TestScoreConfidenceHedging(t *testing.T) {
	assert.InDelta(t, 0.75, scoreConfidence(0.75, "this is certain"), 1e-9)
	assert.InDelta(t, 0.70, scoreConfidence(0.75, "maybe this works"), 1e-9)
	assert.InDelta(t, 0.65, scoreConfidence(0.75, "maybe, or perhaps not"), 1e-9)
	// Penalty caps at 0.15 no matter how hedged the text is.
	assert.InDelta(t, 0.60, scoreConfidence(0.75, "maybe perhaps might possibly uncertain"), 1e-9)
	// And confidence never drops below the floor.
	assert.InDelta(t, 0.3, scoreConfidence(0.4, "maybe perhaps might"), 1e-9)
}

func TestScoreCompleteness(t *testing.T) {
	assert.InDelta(t, 0.9, scoreCompleteness(130, 150), 1e-9)
	assert.InDelta(t, 0.7, scoreCompleteness(90, 150), 1e-9)
	assert.InDelta(t, 0.5, scoreCompleteness(50, 150), 1e-9)
	assert.InDelta(t, 0.4, scoreCompleteness(10, 150), 1e-9)
	assert.InDelta(t, 0.4, scoreCompleteness(10, 0), 1e-9)
}
