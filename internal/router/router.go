// Package router implements the mindmesh tier router.
//
// The router maps a cognitive tier onto a backend tier, downgrades the
// target when its budget slice is exhausted, falls back to cheaper
// backends when endpoints are unhealthy, tracks latency and spend, and
// handles endpoint failover transparently.
package router

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mindmesh/mindmesh/internal/backend"
	"github.com/mindmesh/mindmesh/internal/budget"
	"github.com/mindmesh/mindmesh/pkg/models"
	"github.com/rs/zerolog/log"
)

const decisionRingSize = 100

// TierRouter routes inference requests for cognitive tiers across the
// SMALL/MEDIUM/LARGE backends.
type TierRouter struct {
	clients map[models.BackendTier]backend.Client
	budget  *budget.Tracker
	configs map[models.CognitiveTier]models.TierConfig

	// Active request counter (atomic)
	active int64

	// Health state: tier → last known healthy
	healthMu        sync.RWMutex
	health          map[models.BackendTier]bool
	lastHealthCheck *time.Time

	// Latency tracking: tier → rolling avg ms
	latencyMu sync.RWMutex
	latencies map[models.BackendTier]int64

	// Recent routing decisions, newest overwriting oldest
	decisionMu sync.Mutex
	decisions  []models.RoutingDecision
	decisionAt int
}

// New creates a router over the given backend clients. All tiers start
// out healthy until a call or health check proves otherwise.
func New(clients map[models.BackendTier]backend.Client, tracker *budget.Tracker, configs map[models.CognitiveTier]models.TierConfig) *TierRouter {
	health := make(map[models.BackendTier]bool, len(clients))
	for tier := range clients {
		health[tier] = true
	}
	return &TierRouter{
		clients:   clients,
		budget:    tracker,
		configs:   configs,
		health:    health,
		latencies: make(map[models.BackendTier]int64),
		decisions: make([]models.RoutingDecision, 0, decisionRingSize),
	}
}

// Route sends one inference request on behalf of a cognitive tier.
//
// The backend target is chosen in two passes: budget throttling first,
// then health. A throttled tier downgrades to the next cheaper one even
// when perfectly healthy; an unhealthy tier is skipped entirely. If a
// call fails in transit the failing tier is marked unhealthy and the
// request is retried exactly once on the next fallback.
func (tr *TierRouter) Route(ctx context.Context, tier models.CognitiveTier, req models.InferenceRequest, agentID string) (*models.InferenceResponse, error) {
	cfg, ok := tr.configs[tier]
	if !ok {
		return nil, fmt.Errorf("no configuration for tier %s", tier)
	}

	// Tier ceiling wins over whatever the caller asked for.
	if req.MaxTokens <= 0 || req.MaxTokens > cfg.MaxTokens {
		req.MaxTokens = cfg.MaxTokens
	}

	atomic.AddInt64(&tr.active, 1)
	defer atomic.AddInt64(&tr.active, -1)

	target := cfg.Backend
	actual, reason := tr.selectBackend(target)
	if actual == "" {
		tr.recordDecision(tier, target, actual, reason)
		return nil, fmt.Errorf("%w: no healthy backend for %s", backend.ErrModelUnavailable, tier)
	}

	resp, err := tr.call(ctx, cfg, actual, req)
	if err != nil {
		tr.markUnhealthy(actual, err)

		// One retry on the next fallback; a second failure is final.
		next, nextReason := tr.selectBackend(actual)
		if next == "" || next == actual {
			tr.recordDecision(tier, target, "", reason)
			return nil, err
		}
		log.Warn().
			Str("cognitive_tier", tier.String()).
			Str("failed", string(actual)).
			Str("retry_on", string(next)).
			Err(err).
			Msg("backend call failed, retrying on fallback")

		resp, err = tr.call(ctx, cfg, next, req)
		if err != nil {
			tr.markUnhealthy(next, err)
			tr.recordDecision(tier, target, "", nextReason)
			return nil, err
		}
		actual, reason = next, "failover: "+nextReason
	}

	tr.budget.RecordUsage(actual, resp.TotalTokens, agentID)
	tr.recordDecision(tier, target, actual, reason)
	return resp, nil
}

// selectBackend walks the fallback cascade from target, applying budget
// throttling first and health second. Returns the chosen tier, or ""
// when nothing down the chain is usable, plus a human-readable reason
// when the choice differs from the target.
func (tr *TierRouter) selectBackend(target models.BackendTier) (models.BackendTier, string) {
	reason := ""

	// Pass 1: budget. A throttled tier downgrades even when healthy.
	candidate := target
	if tr.budget.ShouldThrottle(candidate) {
		if next, ok := tr.budget.RecommendDowngrade(candidate); ok {
			candidate = next
			reason = fmt.Sprintf("budget throttled %s", target)
		}
	}

	// Pass 2: health. Skip past anything currently marked down.
	tr.healthMu.RLock()
	defer tr.healthMu.RUnlock()
	for {
		if _, exists := tr.clients[candidate]; exists && tr.health[candidate] {
			return candidate, reason
		}
		if reason == "" {
			reason = fmt.Sprintf("unhealthy cascade from %s", target)
		}
		next, ok := models.FallbackFor(candidate)
		if !ok {
			return "", reason
		}
		candidate = next
	}
}

func (tr *TierRouter) call(ctx context.Context, cfg models.TierConfig, tier models.BackendTier, req models.InferenceRequest) (*models.InferenceResponse, error) {
	client, ok := tr.clients[tier]
	if !ok {
		return nil, fmt.Errorf("%w: no client for %s", backend.ErrModelUnavailable, tier)
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Generate(callCtx, req)
	if err != nil {
		return nil, err
	}

	latencyMs := time.Since(start).Milliseconds()
	tr.latencyMu.Lock()
	prev := tr.latencies[tier]
	if prev == 0 {
		tr.latencies[tier] = latencyMs
	} else {
		// Exponential moving average
		tr.latencies[tier] = (prev*7 + latencyMs*3) / 10
	}
	tr.latencyMu.Unlock()

	return resp, nil
}

func (tr *TierRouter) markUnhealthy(tier models.BackendTier, err error) {
	tr.healthMu.Lock()
	tr.health[tier] = false
	tr.healthMu.Unlock()
	log.Warn().Str("tier", string(tier)).Err(err).Msg("marking backend unhealthy")
}

// CheckHealth probes every backend and refreshes the health map. Called
// periodically by the background scheduler; a tier marked down by a
// failed call recovers here once its endpoint answers again.
func (tr *TierRouter) CheckHealth(ctx context.Context) {
	results := make(map[models.BackendTier]bool, len(tr.clients))
	for tier, client := range tr.clients {
		results[tier] = client.HealthCheck(ctx)
	}

	now := time.Now()
	tr.healthMu.Lock()
	for tier, healthy := range results {
		if tr.health[tier] != healthy {
			log.Info().Str("tier", string(tier)).Bool("healthy", healthy).Msg("backend health changed")
		}
		tr.health[tier] = healthy
	}
	tr.lastHealthCheck = &now
	tr.healthMu.Unlock()
}

func (tr *TierRouter) recordDecision(tier models.CognitiveTier, target, actual models.BackendTier, reason string) {
	d := models.RoutingDecision{
		CognitiveTier: tier,
		TargetTier:    target,
		ActualTier:    actual,
		Downgraded:    actual != target,
		Reason:        reason,
		Timestamp:     time.Now(),
	}

	tr.decisionMu.Lock()
	if len(tr.decisions) < decisionRingSize {
		tr.decisions = append(tr.decisions, d)
	} else {
		tr.decisions[tr.decisionAt] = d
	}
	tr.decisionAt = (tr.decisionAt + 1) % decisionRingSize
	tr.decisionMu.Unlock()
}

// Status snapshots router health, budget and recent decisions.
func (tr *TierRouter) Status() models.RouterStatus {
	tr.healthMu.RLock()
	health := make(map[models.BackendTier]bool, len(tr.health))
	for tier, ok := range tr.health {
		health[tier] = ok
	}
	lastCheck := tr.lastHealthCheck
	tr.healthMu.RUnlock()

	tr.decisionMu.Lock()
	decisions := make([]models.RoutingDecision, len(tr.decisions))
	copy(decisions, tr.decisions)
	tr.decisionMu.Unlock()

	return models.RouterStatus{
		Health:          health,
		Budget:          tr.budget.Status(),
		LastHealthCheck: lastCheck,
		ActiveRequests:  atomic.LoadInt64(&tr.active),
		RecentDecisions: decisions,
	}
}

// AverageLatency reports the rolling average latency for a backend tier
// in milliseconds, or zero before the first call.
func (tr *TierRouter) AverageLatency(tier models.BackendTier) int64 {
	tr.latencyMu.RLock()
	defer tr.latencyMu.RUnlock()
	return tr.latencies[tier]
}

// Close shuts down all backend clients.
func (tr *TierRouter) Close() error {
	var firstErr error
	for tier, client := range tr.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s client: %w", tier, err)
		}
	}
	return firstErr
}
