// Package planner turns a scored stimulus into an ordered execution
// strategy. Planning is pure: no I/O, no clock, no randomness, so the
// same stimulus scores always yield the same plan.
package planner

import (
	"github.com/mindmesh/mindmesh/pkg/models"
)

// Thresholds are the decision boundaries for strategy selection. All
// comparisons against them are strict.
type Thresholds struct {
	HighUrgency           float64
	LowUrgency            float64
	RelevanceGate         float64
	LowRelevance          float64
	DeepComplexity        float64
	AnalyticalComplexity  float64
	MediumComplexitySplit float64
}

// DefaultThresholds returns the tuned boundary set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighUrgency:           0.8,
		LowUrgency:            0.3,
		RelevanceGate:         0.5,
		LowRelevance:          0.3,
		DeepComplexity:        0.5,
		AnalyticalComplexity:  0.7,
		MediumComplexitySplit: 0.5,
	}
}

// Planner selects which tiers run for a stimulus, in what order, and
// with what purpose.
type Planner struct {
	thresholds Thresholds
}

// New builds a Planner with the given thresholds.
func New(thresholds Thresholds) *Planner {
	return &Planner{thresholds: thresholds}
}

// Plan maps stimulus scores to an ordered list of steps. Rules are
// evaluated top to bottom; the first match wins.
//
// Urgent and relevant stimuli get a fast reflex answer plus parallel
// tactical assessment, with deeper analysis appended only when complex.
// Calm but relevant stimuli go straight to deliberation. Irrelevant
// stimuli are noted at minimal cost. Everything else gets an effort
// proportional to its complexity.
func (p *Planner) Plan(s models.Stimulus) []models.Step {
	t := p.thresholds

	switch {
	case s.Urgency > t.HighUrgency && s.Relevance > t.RelevanceGate:
		steps := []models.Step{
			{Tier: models.TierReflex, Purpose: "immediate_response", Replicas: 1},
			{Tier: models.TierReactive, Purpose: "tactical_assessment", Parallel: true, Replicas: 2},
		}
		if s.Complexity > t.DeepComplexity {
			steps = append(steps, models.Step{Tier: models.TierDeliberate, Purpose: "deeper_analysis", Replicas: 1})
		}
		return steps

	case s.Urgency < t.LowUrgency && s.Relevance > t.RelevanceGate:
		steps := []models.Step{
			{Tier: models.TierDeliberate, Purpose: "considered_response", Replicas: 1},
		}
		if s.Complexity > t.AnalyticalComplexity {
			steps = append(steps, models.Step{Tier: models.TierAnalytical, Purpose: "thorough_analysis", Replicas: 1})
		}
		return steps

	case s.Relevance < t.LowRelevance:
		return []models.Step{
			{Tier: models.TierReflex, Purpose: "note_for_context", Replicas: 1},
		}

	default:
		tier := models.TierReactive
		if s.Complexity >= t.MediumComplexitySplit {
			tier = models.TierDeliberate
		}
		return []models.Step{
			{Tier: tier, Purpose: "proportional_response", Replicas: 1},
		}
	}
}
