// Package engine is the top-level entry point for cognition: it owns the
// per-agent runtimes (mind + background scheduler), wires the planner,
// executor and router together, and exposes Process as the one call a
// transport layer needs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mindmesh/mindmesh/internal/executor"
	"github.com/mindmesh/mindmesh/internal/mind"
	"github.com/mindmesh/mindmesh/internal/planner"
	"github.com/mindmesh/mindmesh/internal/prompt"
	"github.com/mindmesh/mindmesh/internal/router"
	"github.com/mindmesh/mindmesh/pkg/models"
)

var (
	// ErrEmptyStimulus rejects stimuli with no content before planning.
	ErrEmptyStimulus = errors.New("stimulus content is empty")

	// ErrAgentNotFound means no runtime exists for the agent yet.
	ErrAgentNotFound = errors.New("agent not found")
)

const healthCheckInterval = 30 * time.Second

// Options tune per-agent scheduling.
type Options struct {
	SynthesisInterval time.Duration
	CleanupInterval   time.Duration
	Retention         time.Duration
}

// agentRuntime is one agent's mind plus its background loop.
type agentRuntime struct {
	mind      *mind.Mind
	scheduler *mind.Scheduler
	cancel    context.CancelFunc
}

// Engine dispatches stimuli across cognitive tiers for many agents.
type Engine struct {
	planner  *planner.Planner
	executor *executor.Executor
	router   *router.TierRouter
	opts     Options

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu     sync.Mutex
	agents map[string]*agentRuntime
}

// New assembles an engine. Agent runtimes are created lazily on first
// stimulus and torn down by Close.
func New(p *planner.Planner, e *executor.Executor, r *router.TierRouter, opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		planner:    p,
		executor:   e,
		router:     r,
		opts:       opts,
		rootCtx:    ctx,
		rootCancel: cancel,
		agents:     make(map[string]*agentRuntime),
	}
}

// Start runs the process-wide health probe loop until ctx is cancelled.
func (en *Engine) Start(ctx context.Context) {
	en.router.CheckHealth(ctx)
	go func() {
		tick := time.NewTicker(healthCheckInterval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-en.rootCtx.Done():
				return
			case <-tick.C:
				en.router.CheckHealth(ctx)
			}
		}
	}()
}

// Process runs one stimulus through plan → execute → remember and
// returns everything the agent thought. An empty result (no thoughts,
// nil primary) means the agent had nothing concrete to think; it is not
// an error.
func (en *Engine) Process(ctx context.Context, agentID, content string, urgency, complexity, relevance float64) (*models.CognitiveResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyStimulus
	}
	if agentID == "" {
		agentID = "default"
	}

	stimulus := models.Stimulus{
		ID:         uuid.New(),
		Content:    content,
		Urgency:    clamp01(urgency),
		Complexity: clamp01(complexity),
		Relevance:  clamp01(relevance),
		Timestamp:  time.Now(),
	}

	rt := en.runtime(agentID)
	steps := en.planner.Plan(stimulus)

	log.Debug().
		Str("agent", agentID).
		Str("stimulus", stimulus.ID.String()).
		Int("steps", len(steps)).
		Msg("stimulus planned")

	pctx := prompt.Context{PriorThoughts: rt.mind.ThoughtsForContext(3)}
	result, err := en.executor.Execute(ctx, agentID, stimulus, steps, pctx)
	if err != nil {
		return nil, fmt.Errorf("execute plan: %w", err)
	}

	for _, t := range result.Thoughts {
		rt.mind.AddThought(t)
	}
	return result, nil
}

// Synthesize condenses a stream's thoughts with one DELIBERATE pass.
// Implements mind.Synthesizer for the per-agent schedulers.
func (en *Engine) Synthesize(ctx context.Context, agentID string, job mind.SynthesisJob) (*models.Thought, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You have been thinking about %q. Your thoughts so far:\n", job.Topic)
	for _, t := range job.Thoughts {
		fmt.Fprintf(&sb, "- [%s, confidence %.2f] %s\n", t.Type, t.Confidence, t.Content)
	}
	sb.WriteString("\nSynthesize these into one coherent position.")

	stimulus := models.Stimulus{
		ID:         uuid.New(),
		Content:    sb.String(),
		Urgency:    0.3,
		Complexity: 0.6,
		Relevance:  0.8,
		Timestamp:  time.Now(),
	}
	steps := []models.Step{{Tier: models.TierDeliberate, Purpose: "synthesis", Replicas: 1}}

	result, err := en.executor.Execute(ctx, agentID, stimulus, steps, prompt.Context{PriorThoughts: job.Thoughts})
	if err != nil {
		return nil, err
	}
	if len(result.Thoughts) == 0 {
		return nil, fmt.Errorf("synthesis produced no thought for %q", job.Topic)
	}
	return &result.Thoughts[0], nil
}

// MindState snapshots an agent's mind for introspection.
func (en *Engine) MindState(agentID string) (*models.MindState, error) {
	en.mu.Lock()
	rt, ok := en.agents[agentID]
	en.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	snap := rt.mind.Snapshot()
	return &snap, nil
}

// BestContribution returns the agent's strongest shareable thought.
func (en *Engine) BestContribution(agentID string) (*models.Thought, error) {
	en.mu.Lock()
	rt, ok := en.agents[agentID]
	en.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return rt.mind.BestContribution(), nil
}

// MarkExternalized records that a thought was shared outward.
func (en *Engine) MarkExternalized(agentID string, thoughtID uuid.UUID) error {
	en.mu.Lock()
	rt, ok := en.agents[agentID]
	en.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	rt.mind.MarkExternalized(thoughtID)
	return nil
}

// InvalidateAbout supersedes an agent's reasoning about a topic.
func (en *Engine) InvalidateAbout(agentID, topic string) (int, error) {
	en.mu.Lock()
	rt, ok := en.agents[agentID]
	en.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return rt.mind.InvalidateAbout(topic), nil
}

// RouterStatus exposes router health and budget for observability.
func (en *Engine) RouterStatus() models.RouterStatus {
	return en.router.Status()
}

// BudgetStatus exposes the budget slice of the router snapshot.
func (en *Engine) BudgetStatus() models.BudgetStatus {
	return en.router.Status().Budget
}

// runtime returns the agent's runtime, creating and starting it on
// first use.
func (en *Engine) runtime(agentID string) *agentRuntime {
	en.mu.Lock()
	defer en.mu.Unlock()

	if rt, ok := en.agents[agentID]; ok {
		return rt
	}

	m := mind.New(agentID)
	ctx, cancel := context.WithCancel(en.rootCtx)
	sched := mind.NewScheduler(m, en, en.opts.SynthesisInterval, en.opts.CleanupInterval, en.opts.Retention)
	sched.Start(ctx)

	rt := &agentRuntime{mind: m, scheduler: sched, cancel: cancel}
	en.agents[agentID] = rt
	log.Info().Str("agent", agentID).Msg("agent runtime created")
	return rt
}

// Close tears down every agent runtime and waits for their schedulers
// to finish their current cycle.
func (en *Engine) Close() error {
	en.rootCancel()

	en.mu.Lock()
	runtimes := make([]*agentRuntime, 0, len(en.agents))
	for _, rt := range en.agents {
		runtimes = append(runtimes, rt)
	}
	en.agents = make(map[string]*agentRuntime)
	en.mu.Unlock()

	for _, rt := range runtimes {
		rt.cancel()
		rt.scheduler.Wait()
	}
	return en.router.Close()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
