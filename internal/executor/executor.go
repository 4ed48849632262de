// Package executor runs planned cognitive steps.
//
// For each step in the plan:
//
//	build a tier-appropriate prompt → call the Tier Router →
//	score confidence and completeness → classify the text →
//	record a Thought; parallel steps fan out replicas and join
//	before the next step begins.
//
// A failed step is logged and skipped; a plan where every step failed
// yields an empty result, not an error.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mindmesh/mindmesh/internal/classify"
	"github.com/mindmesh/mindmesh/internal/prompt"
	"github.com/mindmesh/mindmesh/pkg/models"
)

const (
	// priorThoughtWindow is how many earlier thoughts feed the next prompt.
	priorThoughtWindow = 3

	// relatedThoughtWindow is how many earlier thoughts a new one links to.
	relatedThoughtWindow = 2

	defaultTemperature = 0.7
)

// Hedging words that lower confidence. Each distinct word found costs
// 0.05, capped below.
var hedgingWords = []string{"maybe", "perhaps", "might", "possibly", "uncertain"}

const (
	hedgePenaltyPerWord = 0.05
	hedgePenaltyCap     = 0.15
	confidenceFloor     = 0.3
)

// Router is the slice of the tier router the executor needs.
type Router interface {
	Route(ctx context.Context, tier models.CognitiveTier, req models.InferenceRequest, agentID string) (*models.InferenceResponse, error)
}

// Executor turns execution plans into thoughts.
type Executor struct {
	router     Router
	prompts    *prompt.Builder
	classifier classify.Classifier
	configs    map[models.CognitiveTier]models.TierConfig
}

// New creates an Executor. A nil classifier gets the keyword default.
func New(r Router, prompts *prompt.Builder, classifier classify.Classifier, configs map[models.CognitiveTier]models.TierConfig) *Executor {
	if classifier == nil {
		classifier = classify.New()
	}
	if prompts == nil {
		prompts = prompt.NewBuilder(nil, nil)
	}
	return &Executor{
		router:     r,
		prompts:    prompts,
		classifier: classifier,
		configs:    configs,
	}
}

// Execute runs the steps in order and returns everything they produced.
// pctx seeds the prompt context; thoughts produced earlier in the run
// feed the prompts of later steps.
func (e *Executor) Execute(ctx context.Context, agentID string, stimulus models.Stimulus, steps []models.Step, pctx prompt.Context) (*models.CognitiveResult, error) {
	start := time.Now()
	result := &models.CognitiveResult{
		AgentID:    agentID,
		StimulusID: stimulus.ID,
	}

	for _, step := range steps {
		cfg, ok := e.configs[step.Tier]
		if !ok {
			log.Error().Str("tier", step.Tier.String()).Msg("step references unknown tier, skipping")
			continue
		}

		var produced []models.Thought
		if step.Parallel && step.Replicas > 1 && cfg.CanRunParallel {
			produced = e.runParallel(ctx, agentID, stimulus, step, cfg, pctx, result.Thoughts)
		} else {
			t, err := e.runOne(ctx, agentID, stimulus, cfg, step.Purpose, pctx, result.Thoughts)
			if err != nil {
				log.Warn().
					Str("agent", agentID).
					Str("tier", step.Tier.String()).
					Str("purpose", step.Purpose).
					Err(err).
					Msg("step failed, skipping")
			} else {
				produced = []models.Thought{*t}
			}
		}

		for _, t := range produced {
			t.RelatedThoughtIDs = relatedIDs(result.Thoughts)
			result.Thoughts = append(result.Thoughts, t)
		}
		if len(produced) > 0 {
			result.TiersUsed = append(result.TiersUsed, step.Tier)
		}
	}

	result.PrimaryThought = pickPrimary(result.Thoughts)
	result.ProcessingTime = time.Since(start)

	log.Info().
		Str("agent", agentID).
		Int("thoughts", len(result.Thoughts)).
		Int("steps", len(steps)).
		Dur("elapsed", result.ProcessingTime).
		Msg("cognitive execution complete")

	return result, nil
}

// runParallel fans out step.Replicas calls and joins them, keeping
// successful results in replica order. A failing replica never cancels
// its siblings.
func (e *Executor) runParallel(ctx context.Context, agentID string, stimulus models.Stimulus, step models.Step, cfg models.TierConfig, pctx prompt.Context, prior []models.Thought) []models.Thought {
	slots := make([]*models.Thought, step.Replicas)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < step.Replicas; i++ {
		i := i
		purpose := fmt.Sprintf("%s_%d", step.Purpose, i)
		g.Go(func() error {
			t, err := e.runOne(gctx, agentID, stimulus, cfg, purpose, pctx, prior)
			if err != nil {
				log.Warn().
					Str("agent", agentID).
					Str("tier", cfg.Tier.String()).
					Str("purpose", purpose).
					Err(err).
					Msg("parallel replica failed")
				return nil
			}
			slots[i] = t
			return nil
		})
	}
	_ = g.Wait()

	var out []models.Thought
	for _, t := range slots {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out
}

func (e *Executor) runOne(ctx context.Context, agentID string, stimulus models.Stimulus, cfg models.TierConfig, purpose string, pctx prompt.Context, prior []models.Thought) (*models.Thought, error) {
	pctx.PriorThoughts = append(priorWindow(prior), pctx.PriorThoughts...)
	if len(pctx.PriorThoughts) > priorThoughtWindow {
		pctx.PriorThoughts = pctx.PriorThoughts[:priorThoughtWindow]
	}

	req := models.InferenceRequest{
		Prompt:      e.prompts.Build(cfg, agentID, stimulus.Content, purpose, pctx),
		MaxTokens:   cfg.MaxTokens,
		Temperature: defaultTemperature,
	}

	resp, err := e.router.Route(ctx, cfg.Tier, req, agentID)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Text)
	now := time.Now()
	return &models.Thought{
		ID:            uuid.New(),
		CreatedAt:     now,
		Tier:          cfg.Tier,
		Trigger:       purpose,
		Content:       text,
		Type:          e.classifier.Classify(text, purpose),
		Confidence:    scoreConfidence(cfg.BaseConfidence, text),
		Completeness:  scoreCompleteness(resp.CompletionTokens, cfg.MaxTokens),
		StillRelevant: true,
	}, nil
}

// priorWindow returns the newest thoughts first, up to the window size.
func priorWindow(thoughts []models.Thought) []models.Thought {
	if len(thoughts) == 0 {
		return nil
	}
	n := len(thoughts)
	window := priorThoughtWindow
	if n < window {
		window = n
	}
	out := make([]models.Thought, 0, window)
	for i := n - 1; i >= n-window; i-- {
		out = append(out, thoughts[i])
	}
	return out
}

func relatedIDs(prior []models.Thought) []uuid.UUID {
	n := len(prior)
	if n == 0 {
		return nil
	}
	window := relatedThoughtWindow
	if n < window {
		window = n
	}
	ids := make([]uuid.UUID, 0, window)
	for i := n - window; i < n; i++ {
		ids = append(ids, prior[i].ID)
	}
	return ids
}

// scoreConfidence starts from the tier prior and docks for hedging
// language, never dropping below the floor.
func scoreConfidence(base float64, text string) float64 {
	lower := strings.ToLower(text)
	penalty := 0.0
	for _, w := range hedgingWords {
		if strings.Contains(lower, w) {
			penalty += hedgePenaltyPerWord
		}
	}
	if penalty > hedgePenaltyCap {
		penalty = hedgePenaltyCap
	}
	conf := base - penalty
	if conf < confidenceFloor {
		conf = confidenceFloor
	}
	return conf
}

// scoreCompleteness estimates how fully the response used its token
// budget. A response near the ceiling is assumed more complete.
func scoreCompleteness(completionTokens, maxTokens int) float64 {
	if maxTokens <= 0 {
		return 0.4
	}
	utilization := float64(completionTokens) / float64(maxTokens)
	switch {
	case utilization > 0.8:
		return 0.9
	case utilization > 0.5:
		return 0.7
	case utilization > 0.2:
		return 0.5
	default:
		return 0.4
	}
}

// pickPrimary ranks thoughts by a weighted blend of tier depth,
// confidence and completeness.
func pickPrimary(thoughts []models.Thought) *models.Thought {
	if len(thoughts) == 0 {
		return nil
	}
	best := 0
	bestScore := primaryScore(thoughts[0])
	for i := 1; i < len(thoughts); i++ {
		if s := primaryScore(thoughts[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return &thoughts[best]
}

// The raw tier ordinal (0..4) feeds the blend unscaled, so depth
// dominates: one tier up outweighs any confidence or completeness gap.
func primaryScore(t models.Thought) float64 {
	return 0.4*float64(t.Tier) + 0.3*t.Confidence + 0.3*t.Completeness
}
