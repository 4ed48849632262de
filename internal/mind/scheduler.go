package mind

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mindmesh/mindmesh/pkg/models"
)

// DefaultRetention is how long an un-externalized thought survives
// before cleanup evicts it.
const DefaultRetention = 30 * time.Minute

// Synthesizer condenses a stream's thoughts into one synthesis thought.
// Implemented by the engine on top of the tier executor.
type Synthesizer interface {
	Synthesize(ctx context.Context, agentID string, job SynthesisJob) (*models.Thought, error)
}

// Scheduler is the per-agent background loop: it picks up streams
// flagged for synthesis and periodically sweeps stale thoughts and
// concluded streams.
type Scheduler struct {
	mind  *Mind
	synth Synthesizer

	synthesisInterval time.Duration
	cleanupInterval   time.Duration
	retention         time.Duration

	done chan struct{}
}

// NewScheduler wires a scheduler to one mind. Zero intervals get
// defaults of 1s synthesis, 60s cleanup, 30m retention.
func NewScheduler(m *Mind, synth Synthesizer, synthesisInterval, cleanupInterval, retention time.Duration) *Scheduler {
	if synthesisInterval <= 0 {
		synthesisInterval = time.Second
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Scheduler{
		mind:              m,
		synth:             synth,
		synthesisInterval: synthesisInterval,
		cleanupInterval:   cleanupInterval,
		retention:         retention,
		done:              make(chan struct{}),
	}
}

// Start runs the loop in its own goroutine until ctx is cancelled. The
// cycle in flight finishes before the loop exits.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Wait blocks until the loop has fully stopped.
func (s *Scheduler) Wait() {
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	synthTick := time.NewTicker(s.synthesisInterval)
	defer synthTick.Stop()
	cleanupTick := time.NewTicker(s.cleanupInterval)
	defer cleanupTick.Stop()

	log.Debug().Str("agent", s.mind.agentID).Msg("background scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("agent", s.mind.agentID).Msg("background scheduler stopped")
			return
		case <-synthTick.C:
			s.runSyntheses(ctx)
		case <-cleanupTick.C:
			evicted, dropped := s.mind.Cleanup(s.retention)
			if evicted > 0 || dropped > 0 {
				log.Debug().
					Str("agent", s.mind.agentID).
					Int("evicted", evicted).
					Int("dropped_streams", dropped).
					Msg("mind cleanup cycle")
			}
		}
	}
}

func (s *Scheduler) runSyntheses(ctx context.Context) {
	for _, job := range s.mind.PendingSyntheses() {
		if ctx.Err() != nil {
			return
		}
		synth, err := s.synth.Synthesize(ctx, s.mind.agentID, job)
		if err != nil {
			// Never fatal; the stream stays flagged and the next cycle
			// tries again.
			log.Warn().
				Str("agent", s.mind.agentID).
				Str("topic", job.Topic).
				Err(err).
				Msg("synthesis failed")
			continue
		}
		if synth == nil {
			continue
		}
		s.mind.CompleteSynthesis(job.StreamID, *synth)
	}
}
