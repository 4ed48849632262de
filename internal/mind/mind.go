// Package mind holds an agent's private cognition between stimuli:
// active thoughts, streams of related thinking, syntheses, and the queue
// of insights ready to surface.
//
// A Mind is exclusively owned by one agent runtime. All methods are
// mutex-guarded so the agent's scheduler and request path can share it,
// but it is never touched from another agent's context.
package mind

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mindmesh/mindmesh/pkg/models"
)

const (
	topicWordCount = 5

	// synthesisMinThoughts triggers synthesis outright; the slower
	// two-thought path needs the span and confidence below.
	synthesisMinThoughts   = 3
	synthesisSpan          = 30 * time.Second
	synthesisMinConfidence = 0.6

	// shareConfidence gates whether a synthesis queues for sharing or is
	// held privately.
	shareConfidence = 0.6
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"i": true, "you": true, "we": true, "they": true, "it": true,
	"this": true, "that": true, "these": true, "those": true,
	"to": true, "of": true, "in": true, "on": true, "at": true,
	"for": true, "with": true, "and": true, "or": true, "but": true,
	"not": true, "no": true, "so": true, "if": true, "as": true,
	"my": true, "our": true, "your": true, "their": true, "its": true,
	"what": true, "how": true, "why": true, "when": true, "about": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
}

type stream struct {
	id         string
	topic      string
	topicWords map[string]bool
	thoughtIDs []uuid.UUID
	status     models.StreamStatus
	createdAt  time.Time
	synthesis  *uuid.UUID
}

// SynthesisJob is one stream awaiting synthesis, with copies of its
// source thoughts.
type SynthesisJob struct {
	StreamID string
	Topic    string
	Thoughts []models.Thought
}

// Mind is the per-agent thought arena and stream index.
type Mind struct {
	agentID string

	mu          sync.Mutex
	thoughts    map[uuid.UUID]*models.Thought
	order       []uuid.UUID
	streams     map[string]*stream
	streamOrder []string
	ready       []uuid.UUID
	held        []uuid.UUID
	now         func() time.Time
}

// New creates an empty mind for one agent.
func New(agentID string) *Mind {
	return &Mind{
		agentID:  agentID,
		thoughts: make(map[uuid.UUID]*models.Thought),
		streams:  make(map[string]*stream),
		now:      time.Now,
	}
}

// AddThought appends a thought to the arena and routes it into a stream
// by topic-word overlap, creating a new stream when nothing matches.
// Flags the stream for synthesis when it qualifies.
func (m *Mind) AddThought(t models.Thought) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.addToArenaLocked(t)

	words := significantWords(t.Content)
	s := m.matchStreamLocked(t.Content, words)
	if s == nil {
		s = m.newStreamLocked(words, t.CreatedAt)
	}
	s.thoughtIDs = append(s.thoughtIDs, t.ID)

	if s.status == models.StreamActive && m.qualifiesForSynthesisLocked(s) {
		s.status = models.StreamNeedsSynthesis
		log.Debug().
			Str("agent", m.agentID).
			Str("topic", s.topic).
			Int("thoughts", len(s.thoughtIDs)).
			Msg("stream flagged for synthesis")
	}
}

func (m *Mind) addToArenaLocked(t models.Thought) {
	copied := t
	m.thoughts[t.ID] = &copied
	m.order = append(m.order, t.ID)
}

func (m *Mind) matchStreamLocked(content string, words []string) *stream {
	lower := strings.ToLower(content)
	for _, id := range m.streamOrder {
		s := m.streams[id]
		if s.status == models.StreamConcluded || s.status == models.StreamAbandoned {
			continue
		}
		if strings.Contains(lower, s.topic) {
			return s
		}
		overlap := 0
		for _, w := range words {
			if s.topicWords[w] {
				overlap++
			}
		}
		if overlap >= 2 {
			return s
		}
	}
	return nil
}

func (m *Mind) newStreamLocked(words []string, at time.Time) *stream {
	if len(words) > topicWordCount {
		words = words[:topicWordCount]
	}
	topicWords := make(map[string]bool, len(words))
	for _, w := range words {
		topicWords[w] = true
	}
	s := &stream{
		id:         uuid.New().String(),
		topic:      strings.Join(words, " "),
		topicWords: topicWords,
		status:     models.StreamActive,
		createdAt:  at,
	}
	m.streams[s.id] = s
	m.streamOrder = append(m.streamOrder, s.id)
	return s
}

func (m *Mind) qualifiesForSynthesisLocked(s *stream) bool {
	if len(s.thoughtIDs) >= synthesisMinThoughts {
		return true
	}
	if len(s.thoughtIDs) < 2 {
		return false
	}

	var oldest, newest time.Time
	var confSum float64
	count := 0
	for _, id := range s.thoughtIDs {
		t, ok := m.thoughts[id]
		if !ok {
			continue
		}
		if count == 0 || t.CreatedAt.Before(oldest) {
			oldest = t.CreatedAt
		}
		if count == 0 || t.CreatedAt.After(newest) {
			newest = t.CreatedAt
		}
		confSum += t.Confidence
		count++
	}
	if count < 2 {
		return false
	}
	return newest.Sub(oldest) > synthesisSpan && confSum/float64(count) > synthesisMinConfidence
}

// PendingSyntheses returns the streams flagged for synthesis, with
// copies of their thoughts, for the background loop to work through.
// Streams with fewer than two surviving thoughts are unflagged instead.
func (m *Mind) PendingSyntheses() []SynthesisJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []SynthesisJob
	for _, id := range m.streamOrder {
		s := m.streams[id]
		if s.status != models.StreamNeedsSynthesis {
			continue
		}
		thoughts := make([]models.Thought, 0, len(s.thoughtIDs))
		for _, tid := range s.thoughtIDs {
			if t, ok := m.thoughts[tid]; ok {
				thoughts = append(thoughts, *t)
			}
		}
		if len(thoughts) < 2 {
			s.status = models.StreamActive
			continue
		}
		jobs = append(jobs, SynthesisJob{StreamID: s.id, Topic: s.topic, Thoughts: thoughts})
	}
	return jobs
}

// CompleteSynthesis records the outcome of one synthesis run: the
// synthesized thought joins the arena, every source thought is
// superseded, and the stream concludes so it is never synthesized again.
// High-confidence syntheses queue for sharing; the rest are held.
func (m *Mind) CompleteSynthesis(streamID string, synth models.Thought) {
	m.mu.Lock()

	s, ok := m.streams[streamID]
	if !ok || s.status == models.StreamConcluded {
		m.mu.Unlock()
		return
	}

	synth.Type = models.ThoughtSynthesis
	synth.StillRelevant = true
	m.addToArenaLocked(synth)

	for _, tid := range s.thoughtIDs {
		if t, exists := m.thoughts[tid]; exists {
			t.StillRelevant = false
			superseded := synth.ID
			t.SupersededBy = &superseded
		}
	}
	s.status = models.StreamConcluded
	s.synthesis = &synth.ID
	m.mu.Unlock()

	if synth.Confidence > shareConfidence {
		m.PrepareToShare(synth)
	} else {
		m.HoldInsight(synth)
	}

	log.Info().
		Str("agent", m.agentID).
		Str("topic", s.topic).
		Float64("confidence", synth.Confidence).
		Msg("stream synthesized")
}

// PrepareToShare queues a thought for externalization.
func (m *Mind) PrepareToShare(t models.Thought) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.thoughts[t.ID]; !ok {
		m.addToArenaLocked(t)
	}
	m.ready = append(m.ready, t.ID)
}

// HoldInsight keeps a thought private without queueing it.
func (m *Mind) HoldInsight(t models.Thought) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.thoughts[t.ID]; !ok {
		m.addToArenaLocked(t)
	}
	m.held = append(m.held, t.ID)
}

// BestContribution returns the strongest still-relevant queued thought,
// ranked by completeness then confidence, or nil when nothing is worth
// saying.
func (m *Mind) BestContribution() *models.Thought {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*models.Thought
	for _, id := range m.ready {
		t, ok := m.thoughts[id]
		if !ok || !t.StillRelevant || t.Externalized {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Completeness != candidates[j].Completeness {
			return candidates[i].Completeness > candidates[j].Completeness
		}
		return candidates[i].Confidence > candidates[j].Confidence
	})
	best := *candidates[0]
	return &best
}

// MarkExternalized records that a thought was actually spoken and drops
// it from the ready queue.
func (m *Mind) MarkExternalized(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.thoughts[id]; ok {
		now := m.now()
		t.Externalized = true
		t.ExternalizedAt = &now
	}
	m.ready = removeID(m.ready, id)
}

// InvalidateAbout supersedes every active thought mentioning the topic
// and purges matches from the ready queue. Used when new information
// makes prior reasoning stale.
func (m *Mind) InvalidateAbout(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	lower := strings.ToLower(topic)
	invalidated := 0
	for _, t := range m.thoughts {
		if t.StillRelevant && strings.Contains(strings.ToLower(t.Content), lower) {
			t.StillRelevant = false
			invalidated++
			m.ready = removeID(m.ready, t.ID)
		}
	}
	return invalidated
}

// ThoughtsForContext returns up to n of the most recent still-relevant
// thoughts, newest first, for prompt context.
func (m *Mind) ThoughtsForContext(n int) []models.Thought {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Thought, 0, n)
	for i := len(m.order) - 1; i >= 0 && len(out) < n; i-- {
		if t, ok := m.thoughts[m.order[i]]; ok && t.StillRelevant {
			out = append(out, *t)
		}
	}
	return out
}

// Cleanup evicts stale thoughts that were never externalized and drops
// concluded streams. Returns evicted and dropped counts.
func (m *Mind) Cleanup(retention time.Duration) (evicted, dropped int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-retention)
	removed := make(map[uuid.UUID]bool)
	for id, t := range m.thoughts {
		if !t.Externalized && t.CreatedAt.Before(cutoff) {
			delete(m.thoughts, id)
			removed[id] = true
			evicted++
		}
	}
	if len(removed) > 0 {
		m.order = filterIDs(m.order, removed)
		m.ready = filterIDs(m.ready, removed)
		m.held = filterIDs(m.held, removed)
	}

	kept := m.streamOrder[:0]
	for _, id := range m.streamOrder {
		s := m.streams[id]
		if s.status == models.StreamConcluded || s.status == models.StreamAbandoned {
			delete(m.streams, id)
			dropped++
			continue
		}
		if len(removed) > 0 {
			s.thoughtIDs = filterIDs(s.thoughtIDs, removed)
		}
		kept = append(kept, id)
	}
	m.streamOrder = kept
	return evicted, dropped
}

// Snapshot summarizes the mind for introspection consumers.
func (m *Mind) Snapshot() models.MindState {
	m.mu.Lock()
	defer m.mu.Unlock()

	needsSynthesis := 0
	streams := make([]models.StreamInfo, 0, len(m.streamOrder))
	for _, id := range m.streamOrder {
		s := m.streams[id]
		if s.status == models.StreamNeedsSynthesis {
			needsSynthesis++
		}
		streams = append(streams, models.StreamInfo{
			ID:           s.id,
			Topic:        s.topic,
			ThoughtCount: len(s.thoughtIDs),
			Status:       s.status,
			CreatedAt:    s.createdAt,
			HasSynthesis: s.synthesis != nil,
		})
	}

	active := 0
	for _, t := range m.thoughts {
		if t.StillRelevant {
			active++
		}
	}

	return models.MindState{
		AgentID:                 m.agentID,
		ActiveThoughtCount:      active,
		StreamCount:             len(m.streamOrder),
		StreamsNeedingSynthesis: needsSynthesis,
		HeldInsightCount:        len(m.held),
		ReadyToShareCount:       len(m.ready),
		Streams:                 streams,
	}
}

// significantWords lowercases, strips punctuation and drops stop words.
func significantWords(content string) []string {
	fields := strings.Fields(strings.ToLower(content))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
		})
		if w == "" || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func filterIDs(ids []uuid.UUID, removed map[uuid.UUID]bool) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if !removed[v] {
			out = append(out, v)
		}
	}
	return out
}
