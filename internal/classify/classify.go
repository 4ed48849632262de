// Package classify assigns a thought type to generated text. The default
// classifier is keyword-based; swap in something smarter by implementing
// Classifier.
package classify

import (
	"strings"

	"github.com/mindmesh/mindmesh/pkg/models"
)

// Classifier decides what kind of thought a piece of generated text is.
type Classifier interface {
	Classify(text, purpose string) models.ThoughtType
}

// Keyword word lists, checked in priority order. Concerns outrank
// questions so that a worried question still reads as a concern.
var (
	concernWords     = []string{"concern", "risk", "worry", "careful", "danger"}
	planWords        = []string{"should", "could", "plan", "next", "recommend"}
	observationWords = []string{"notice", "observe", "see", "note"}
)

// KeywordClassifier matches lowercase substrings against fixed word
// lists. Deterministic and cheap; good enough until classifications
// feed anything heavier than stream grouping.
type KeywordClassifier struct{}

// New returns the default classifier.
func New() KeywordClassifier { return KeywordClassifier{} }

func (KeywordClassifier) Classify(text, purpose string) models.ThoughtType {
	lower := strings.ToLower(text)

	if containsAny(lower, concernWords) {
		return models.ThoughtConcern
	}
	if strings.Contains(lower, "?") {
		return models.ThoughtQuestion
	}
	if purpose == "immediate_response" {
		return models.ThoughtReaction
	}
	if containsAny(lower, planWords) {
		return models.ThoughtPlan
	}
	if containsAny(lower, observationWords) {
		return models.ThoughtObservation
	}
	return models.ThoughtInsight
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
