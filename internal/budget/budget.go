// Package budget tracks inference spend against an hourly allowance and
// decides when a backend tier must be throttled down.
package budget

import (
	"sort"
	"sync"
	"time"

	"github.com/mindmesh/mindmesh/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultHourlyBudgetUSD is the spend ceiling per rolling hour window.
const DefaultHourlyBudgetUSD = 15.0

// Share of the hourly budget allocated to each backend tier. The
// remaining 15% is deliberately unallocated headroom.
var tierAllocation = map[models.BackendTier]float64{
	models.BackendSmall:  0.10,
	models.BackendMedium: 0.25,
	models.BackendLarge:  0.50,
}

// Cost per 1000 tokens, blended across prompt and completion.
var costPer1KTokens = map[models.BackendTier]float64{
	models.BackendSmall:  0.0002,
	models.BackendMedium: 0.0012,
	models.BackendLarge:  0.0049,
}

// Utilization above which a tier stops accepting new work. Expensive
// tiers throttle earlier so cheap capacity survives the longest.
var throttleThreshold = map[models.BackendTier]float64{
	models.BackendSmall:  0.95,
	models.BackendMedium: 0.85,
	models.BackendLarge:  0.75,
}

const topAgentCount = 10

type tierUsage struct {
	tokens int64
	cost   float64
}

// Tracker accounts token usage per backend tier and per agent within an
// hourly window. The window resets lazily: the first call after the hour
// boundary zeroes all counters. Safe for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	hourlyUSD   float64
	windowStart time.Time
	byTier      map[models.BackendTier]*tierUsage
	byAgent     map[string]int64
	now         func() time.Time
}

// New returns a Tracker with the given hourly allowance. A zero or
// negative allowance falls back to the default.
func New(hourlyUSD float64) *Tracker {
	if hourlyUSD <= 0 {
		hourlyUSD = DefaultHourlyBudgetUSD
	}
	t := &Tracker{
		hourlyUSD: hourlyUSD,
		now:       time.Now,
	}
	t.resetLocked(t.now())
	return t
}

// resetLocked zeroes all counters and restarts the window. Callers must
// hold mu (New is the exception, before the Tracker escapes).
func (t *Tracker) resetLocked(at time.Time) {
	t.windowStart = at
	t.byTier = map[models.BackendTier]*tierUsage{
		models.BackendSmall:  {},
		models.BackendMedium: {},
		models.BackendLarge:  {},
	}
	t.byAgent = make(map[string]int64)
}

func (t *Tracker) maybeRollWindowLocked() {
	now := t.now()
	if now.Sub(t.windowStart) >= time.Hour {
		log.Info().
			Time("window_start", t.windowStart).
			Float64("spent_usd", t.totalCostLocked()).
			Msg("budget window reset")
		t.resetLocked(now)
	}
}

func (t *Tracker) totalCostLocked() float64 {
	var total float64
	for _, u := range t.byTier {
		total += u.cost
	}
	return total
}

// RecordUsage charges tokens consumed on a backend tier to the hourly
// window and to the agent that spent them.
func (t *Tracker) RecordUsage(tier models.BackendTier, tokens int, agentID string) {
	if tokens <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeRollWindowLocked()

	u, ok := t.byTier[tier]
	if !ok {
		u = &tierUsage{}
		t.byTier[tier] = u
	}
	u.tokens += int64(tokens)
	u.cost += float64(tokens) / 1000.0 * costPer1KTokens[tier]
	if agentID != "" {
		t.byAgent[agentID] += int64(tokens)
	}
}

// ShouldThrottle reports whether a tier has crossed its utilization
// threshold for the current window.
func (t *Tracker) ShouldThrottle(tier models.BackendTier) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeRollWindowLocked()
	return t.utilizationLocked(tier) > throttleThreshold[tier]
}

// RecommendDowngrade suggests a cheaper tier to absorb work from a
// throttled one. Walks the fallback chain and returns the first tier
// that is not itself throttled, or false when everything cheaper is
// also exhausted.
func (t *Tracker) RecommendDowngrade(tier models.BackendTier) (models.BackendTier, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeRollWindowLocked()

	for {
		next, ok := models.FallbackFor(tier)
		if !ok {
			return "", false
		}
		if t.utilizationLocked(next) <= throttleThreshold[next] {
			return next, true
		}
		tier = next
	}
}

func (t *Tracker) utilizationLocked(tier models.BackendTier) float64 {
	alloc := t.hourlyUSD * tierAllocation[tier]
	if alloc <= 0 {
		return 0
	}
	u, ok := t.byTier[tier]
	if !ok {
		return 0
	}
	return u.cost / alloc
}

// Status snapshots the current window for observability consumers.
func (t *Tracker) Status() models.BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeRollWindowLocked()

	byTier := make(map[models.BackendTier]models.TierBudgetStatus, len(t.byTier))
	for _, tier := range models.AllBackendTiers {
		u := t.byTier[tier]
		util := t.utilizationLocked(tier)
		byTier[tier] = models.TierBudgetStatus{
			Tier:        tier,
			TokensUsed:  u.tokens,
			CostUSD:     u.cost,
			BudgetUSD:   t.hourlyUSD * tierAllocation[tier],
			Utilization: util,
			Throttled:   util > throttleThreshold[tier],
		}
	}

	total := t.totalCostLocked()
	return models.BudgetStatus{
		WindowStart:        t.windowStart,
		HourlyBudgetUSD:    t.hourlyUSD,
		TotalCostUSD:       total,
		OverallUtilization: total / t.hourlyUSD,
		ByTier:             byTier,
		TopAgents:          t.topAgentsLocked(),
	}
}

func (t *Tracker) topAgentsLocked() []models.AgentUsage {
	agents := make([]models.AgentUsage, 0, len(t.byAgent))
	for id, tokens := range t.byAgent {
		agents = append(agents, models.AgentUsage{AgentID: id, Tokens: tokens})
	}
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].Tokens != agents[j].Tokens {
			return agents[i].Tokens > agents[j].Tokens
		}
		return agents[i].AgentID < agents[j].AgentID
	})
	if len(agents) > topAgentCount {
		agents = agents[:topAgentCount]
	}
	return agents
}
