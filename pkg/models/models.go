// Package models defines the shared data model for the mindmesh engine:
// cognitive tiers and their static configuration, inference request and
// response values, thoughts and their lifecycle metadata, and the snapshot
// types exposed to observability consumers.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════
// ── Cognitive Tiers ──────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// CognitiveTier is a processing depth. The ordinal order matters: higher
// tiers spend more tokens and latency for more deliberation.
type CognitiveTier int

const (
	TierReflex CognitiveTier = iota
	TierReactive
	TierDeliberate
	TierAnalytical
	TierComprehensive
)

// AllCognitiveTiers lists the tiers in ascending depth order.
var AllCognitiveTiers = []CognitiveTier{
	TierReflex, TierReactive, TierDeliberate, TierAnalytical, TierComprehensive,
}

func (t CognitiveTier) String() string {
	switch t {
	case TierReflex:
		return "REFLEX"
	case TierReactive:
		return "REACTIVE"
	case TierDeliberate:
		return "DELIBERATE"
	case TierAnalytical:
		return "ANALYTICAL"
	case TierComprehensive:
		return "COMPREHENSIVE"
	}
	return fmt.Sprintf("CognitiveTier(%d)", int(t))
}

// ParseCognitiveTier converts a tier name to its enum value.
func ParseCognitiveTier(name string) (CognitiveTier, error) {
	for _, t := range AllCognitiveTiers {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown cognitive tier %q", name)
}

// MarshalText makes tiers serialize by name in API payloads.
func (t CognitiveTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *CognitiveTier) UnmarshalText(b []byte) error {
	parsed, err := ParseCognitiveTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// BackendTier is the class of inference service a cognitive tier routes to.
type BackendTier string

const (
	BackendSmall  BackendTier = "small"
	BackendMedium BackendTier = "medium"
	BackendLarge  BackendTier = "large"
)

// AllBackendTiers lists backend tiers from cheapest to most expensive.
var AllBackendTiers = []BackendTier{BackendSmall, BackendMedium, BackendLarge}

// FallbackFor returns the next cheaper tier in the fallback cascade, or
// false for SMALL, which has nowhere left to go.
func FallbackFor(tier BackendTier) (BackendTier, bool) {
	switch tier {
	case BackendLarge:
		return BackendMedium, true
	case BackendMedium:
		return BackendSmall, true
	}
	return "", false
}

// MemoryAccess is the depth of memory retrieval a tier is allowed.
type MemoryAccess string

const (
	MemoryCached     MemoryAccess = "cached"
	MemoryRecent     MemoryAccess = "recent"
	MemoryIndexed    MemoryAccess = "indexed"
	MemoryFullSearch MemoryAccess = "full_search"
)

// TierConfig is the immutable per-tier configuration, loaded once at
// startup. All tier-specific behavior is driven from this table rather
// than branched code.
type TierConfig struct {
	Tier             CognitiveTier `json:"tier"`
	MaxTokens        int           `json:"max_tokens"`
	TargetLatency    time.Duration `json:"target_latency"`
	Timeout          time.Duration `json:"timeout"`
	MemoryAccess     MemoryAccess  `json:"memory_access"`
	MaxContextTokens int           `json:"max_context_tokens"`
	CanRunParallel   bool          `json:"can_run_parallel"`
	Backend          BackendTier   `json:"backend"`

	// BaseConfidence reflects that deeper tiers deliberate longer; it is a
	// configured prior, not an empirical measure.
	BaseConfidence float64 `json:"base_confidence"`
}

// DefaultTierConfigs returns the standard five-tier table.
func DefaultTierConfigs() map[CognitiveTier]TierConfig {
	return map[CognitiveTier]TierConfig{
		TierReflex: {
			Tier:             TierReflex,
			MaxTokens:        150,
			TargetLatency:    200 * time.Millisecond,
			Timeout:          500 * time.Millisecond,
			MemoryAccess:     MemoryCached,
			MaxContextTokens: 100,
			CanRunParallel:   true,
			Backend:          BackendSmall,
			BaseConfidence:   0.5,
		},
		TierReactive: {
			Tier:             TierReactive,
			MaxTokens:        400,
			TargetLatency:    500 * time.Millisecond,
			Timeout:          time.Second,
			MemoryAccess:     MemoryRecent,
			MaxContextTokens: 300,
			CanRunParallel:   true,
			Backend:          BackendMedium,
			BaseConfidence:   0.6,
		},
		TierDeliberate: {
			Tier:             TierDeliberate,
			MaxTokens:        1200,
			TargetLatency:    2 * time.Second,
			Timeout:          3 * time.Second,
			MemoryAccess:     MemoryIndexed,
			MaxContextTokens: 600,
			CanRunParallel:   false,
			Backend:          BackendLarge,
			BaseConfidence:   0.75,
		},
		TierAnalytical: {
			Tier:             TierAnalytical,
			MaxTokens:        2500,
			TargetLatency:    5 * time.Second,
			Timeout:          7 * time.Second,
			MemoryAccess:     MemoryFullSearch,
			MaxContextTokens: 1000,
			CanRunParallel:   false,
			Backend:          BackendLarge,
			BaseConfidence:   0.85,
		},
		TierComprehensive: {
			Tier:             TierComprehensive,
			MaxTokens:        4000,
			TargetLatency:    10 * time.Second,
			Timeout:          12 * time.Second,
			MemoryAccess:     MemoryFullSearch,
			MaxContextTokens: 1500,
			CanRunParallel:   false,
			Backend:          BackendLarge,
			BaseConfidence:   0.9,
		},
	}
}

// ══════════════════════════════════════════════════════════════
// ── Inference ────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// InferenceRequest is one completion request to a backend. Created per
// call and owned by the caller.
type InferenceRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// InferenceResponse is the backend's answer with usage accounting.
type InferenceResponse struct {
	Text             string        `json:"text"`
	ModelUsed        string        `json:"model_used"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Latency          time.Duration `json:"latency"`
	Backend          BackendTier   `json:"backend"`
}

// ══════════════════════════════════════════════════════════════
// ── Thoughts ─────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ThoughtType classifies what kind of cognition a thought represents.
type ThoughtType string

const (
	ThoughtInsight     ThoughtType = "insight"
	ThoughtConcern     ThoughtType = "concern"
	ThoughtQuestion    ThoughtType = "question"
	ThoughtObservation ThoughtType = "observation"
	ThoughtPlan        ThoughtType = "plan"
	ThoughtReaction    ThoughtType = "reaction"
	ThoughtSynthesis   ThoughtType = "synthesis"
)

// Thought is one discrete unit of output from a tier execution. Created
// by the executor; lifecycle fields (Externalized, StillRelevant,
// SupersededBy) are mutated only by the owning mind.
type Thought struct {
	ID        uuid.UUID     `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Tier      CognitiveTier `json:"tier"`

	// Trigger is the purpose string that produced this thought, or
	// "spontaneous" for thoughts not tied to a stimulus.
	Trigger string      `json:"trigger"`
	Content string      `json:"content"`
	Type    ThoughtType `json:"thought_type"`

	Confidence   float64 `json:"confidence"`
	Completeness float64 `json:"completeness"`

	Externalized   bool       `json:"externalized"`
	ExternalizedAt *time.Time `json:"externalized_at,omitempty"`
	StillRelevant  bool       `json:"still_relevant"`
	SupersededBy   *uuid.UUID `json:"superseded_by,omitempty"`

	RelatedThoughtIDs []uuid.UUID `json:"related_thought_ids,omitempty"`
}

// StreamStatus is the lifecycle state of a thought stream.
type StreamStatus string

const (
	StreamActive         StreamStatus = "active"
	StreamNeedsSynthesis StreamStatus = "needs_synthesis"
	StreamConcluded      StreamStatus = "concluded"
	StreamAbandoned      StreamStatus = "abandoned"
)

// ══════════════════════════════════════════════════════════════
// ── Planning & Results ───────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Stimulus is one incoming event to think about. Urgency, Complexity and
// Relevance are scores in [0,1] assigned by the caller.
type Stimulus struct {
	ID         uuid.UUID `json:"id"`
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	Urgency    float64   `json:"urgency"`
	Complexity float64   `json:"complexity"`
	Relevance  float64   `json:"relevance"`
	Timestamp  time.Time `json:"timestamp"`
}

// Step is one planned tier execution. Parallel steps fan out Replicas
// concurrent calls and join before the next step begins.
type Step struct {
	Tier     CognitiveTier `json:"tier"`
	Purpose  string        `json:"purpose"`
	Parallel bool          `json:"parallel"`
	Replicas int           `json:"replicas"`
}

// CognitiveResult is everything one stimulus produced. A result with no
// thoughts and a nil primary means the agent produced no response; it is
// not an error.
type CognitiveResult struct {
	Thoughts       []Thought       `json:"thoughts"`
	PrimaryThought *Thought        `json:"primary_thought,omitempty"`
	TiersUsed      []CognitiveTier `json:"tiers_used"`
	ProcessingTime time.Duration   `json:"processing_time"`
	AgentID        string          `json:"agent_id"`
	StimulusID     uuid.UUID       `json:"stimulus_id"`
}

// HighestTierUsed returns the deepest tier that contributed a thought.
func (r *CognitiveResult) HighestTierUsed() (CognitiveTier, bool) {
	if len(r.TiersUsed) == 0 {
		return 0, false
	}
	max := r.TiersUsed[0]
	for _, t := range r.TiersUsed[1:] {
		if t > max {
			max = t
		}
	}
	return max, true
}

// ══════════════════════════════════════════════════════════════
// ── Snapshots ────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// TierBudgetStatus is the budget snapshot for one backend tier.
type TierBudgetStatus struct {
	Tier        BackendTier `json:"tier"`
	TokensUsed  int64       `json:"tokens_used"`
	CostUSD     float64     `json:"cost_usd"`
	BudgetUSD   float64     `json:"budget_usd"`
	Utilization float64     `json:"utilization"`
	Throttled   bool        `json:"throttled"`
}

// AgentUsage is one agent's token consumption within the current window.
type AgentUsage struct {
	AgentID string `json:"agent_id"`
	Tokens  int64  `json:"tokens"`
}

// BudgetStatus is the full budget snapshot for observability consumers.
type BudgetStatus struct {
	WindowStart        time.Time                        `json:"window_start"`
	HourlyBudgetUSD    float64                          `json:"hourly_budget_usd"`
	TotalCostUSD       float64                          `json:"total_cost_usd"`
	OverallUtilization float64                          `json:"overall_utilization"`
	ByTier             map[BackendTier]TierBudgetStatus `json:"by_tier"`
	TopAgents          []AgentUsage                     `json:"top_agents"`
}

// RoutingDecision records where one call actually went and why.
type RoutingDecision struct {
	CognitiveTier CognitiveTier `json:"cognitive_tier"`
	TargetTier    BackendTier   `json:"target_tier"`
	ActualTier    BackendTier   `json:"actual_tier"`
	Downgraded    bool          `json:"downgraded"`
	Reason        string        `json:"reason,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// RouterStatus is the router snapshot for observability consumers.
type RouterStatus struct {
	Health          map[BackendTier]bool `json:"health"`
	Budget          BudgetStatus         `json:"budget"`
	LastHealthCheck *time.Time           `json:"last_health_check,omitempty"`
	ActiveRequests  int64                `json:"active_requests"`
	RecentDecisions []RoutingDecision    `json:"recent_decisions,omitempty"`
}

// StreamInfo is the per-stream slice of a mind snapshot.
type StreamInfo struct {
	ID           string       `json:"id"`
	Topic        string       `json:"topic"`
	ThoughtCount int          `json:"thought_count"`
	Status       StreamStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	HasSynthesis bool         `json:"has_synthesis"`
}

// MindState is the introspection snapshot exposed per agent.
type MindState struct {
	AgentID                 string       `json:"agent_id"`
	ActiveThoughtCount      int          `json:"active_thought_count"`
	StreamCount             int          `json:"stream_count"`
	StreamsNeedingSynthesis int          `json:"streams_needing_synthesis"`
	HeldInsightCount        int          `json:"held_insight_count"`
	ReadyToShareCount       int          `json:"ready_to_share_count"`
	BackgroundTaskCount     int          `json:"background_task_count"`
	Streams                 []StreamInfo `json:"streams,omitempty"`
}
