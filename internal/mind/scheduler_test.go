package mind

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mindmesh/mindmesh/pkg/models"
)

type fakeSynthesizer struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, agentID string, job SynthesisJob) (*models.Thought, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("backend down")
	}
	th := thought("synthesized: "+job.Topic, 0.8, 0.8)
	return &th, nil
}

func TestSchedulerSynthesizesFlaggedStreams(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New("agent-1")
	for _, c := range []string{
		"alert noise drowns real pages",
		"alert noise doubled after the migration",
		"alert noise needs routing rules",
	} {
		m.AddThought(thought(c, 0.7, 0.6))
	}

	synth := &fakeSynthesizer{}
	s := NewScheduler(m, synth, 10*time.Millisecond, time.Minute, DefaultRetention)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.Eventually(t, func() bool {
		return m.Snapshot().ReadyToShareCount == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.Wait()

	assert.EqualValues(t, 1, synth.calls.Load())
	assert.Zero(t, m.Snapshot().StreamsNeedingSynthesis)
}

func TestSchedulerRetriesFailedSynthesis(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New("agent-1")
	for _, c := range []string{
		"billing export misses refunds",
		"billing export drops partial rows",
		"billing export needs a checksum",
	} {
		m.AddThought(thought(c, 0.7, 0.6))
	}

	synth := &fakeSynthesizer{}
	synth.fail.Store(true)
	s := NewScheduler(m, synth, 10*time.Millisecond, time.Minute, DefaultRetention)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	// Failures keep the stream flagged; the loop keeps trying.
	require.Eventually(t, func() bool {
		return synth.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, m.Snapshot().StreamsNeedingSynthesis)

	synth.fail.Store(false)
	require.Eventually(t, func() bool {
		return m.Snapshot().ReadyToShareCount == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.Wait()
}

func TestSchedulerCleanupCycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New("agent-1")
	stale := thought("ancient unshared musing", 0.6, 0.5)
	stale.CreatedAt = time.Now().Add(-time.Hour)
	m.AddThought(stale)

	s := NewScheduler(m, &fakeSynthesizer{}, time.Minute, 10*time.Millisecond, 30*time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.Eventually(t, func() bool {
		return m.Snapshot().ActiveThoughtCount == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.Wait()
}

func TestSchedulerStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(New("agent-1"), &fakeSynthesizer{}, 5*time.Millisecond, 5*time.Millisecond, DefaultRetention)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop within 1s")
	}
}
