package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/apresai/roleplay/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, maxJobs int) (*Manager, *MemoryStore, context.CancelFunc) {
	t.Helper()
	base, cancel := context.WithCancel(context.Background())
	store := NewMemoryStore(WithLogger(discardLogger()))
	m := NewManager(store, maxJobs, discardLogger(), base)
	m.Throttle = 0
	t.Cleanup(cancel)
	return m, store, cancel
}

func finalJob(t *testing.T, s Store, id string) Job {
	t.Helper()
	ch, err := s.Subscribe(context.Background(), id)
	require.NoError(t, err)
	drain(t, ch)
	job, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestManagerRunsToCompletion(t *testing.T) {
	m, store, _ := newTestManager(t, 2)

	id, err := m.Start(context.Background(), "generate", func(ctx context.Context, cb progress.Callback) (map[string]string, error) {
		cb(progress.Event{Stage: progress.StageExtract, Message: "Extracting", Percent: 0.1})
		cb(progress.Event{Stage: progress.StagePersona, Message: "Persona", Percent: 0.4})
		cb(progress.Event{Stage: progress.StageComplete, Message: "Done", Percent: 1})
		return map[string]string{"scenario_id": "s1"}, nil
	})
	require.NoError(t, err)

	job := finalJob(t, store, id)
	assert.Equal(t, StatusComplete, job.Status)
	assert.Equal(t, "generate", job.Kind)
	assert.Equal(t, "s1", job.Result["scenario_id"])
	assert.Equal(t, 1.0, job.Percent)

	m.Wait()
	assert.Equal(t, 0, m.Running())
}

func TestManagerRecordsFailure(t *testing.T) {
	m, store, _ := newTestManager(t, 2)

	id, err := m.Start(context.Background(), "generate", func(context.Context, progress.Callback) (map[string]string, error) {
		return nil, errors.New("llm down")
	})
	require.NoError(t, err)

	job := finalJob(t, store, id)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "llm down", job.Error)
}

func TestManagerCapacity(t *testing.T) {
	m, _, _ := newTestManager(t, 1)
	release := make(chan struct{})

	_, err := m.Start(context.Background(), "generate", func(ctx context.Context, _ progress.Callback) (map[string]string, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	_, err = m.Start(context.Background(), "generate", func(context.Context, progress.Callback) (map[string]string, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCapacity)

	close(release)
	m.Wait()
	assert.Equal(t, 0, m.Running())
}

func TestManagerCancel(t *testing.T) {
	m, store, _ := newTestManager(t, 1)
	started := make(chan struct{})

	id, err := m.Start(context.Background(), "drift", func(ctx context.Context, _ progress.Callback) (map[string]string, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started

	assert.True(t, m.Cancel(id))
	job := finalJob(t, store, id)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "cancelled", job.Error)
	assert.False(t, m.Cancel("unknown"))
}

func TestManagerShutdownFailsRunningJobs(t *testing.T) {
	m, store, shutdown := newTestManager(t, 1)
	started := make(chan struct{})

	id, err := m.Start(context.Background(), "generate", func(ctx context.Context, _ progress.Callback) (map[string]string, error) {
		close(started)
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started

	shutdown()
	m.Wait()

	job, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "server shutdown during processing", job.Error)
}

func TestManagerThrottlesWithinStage(t *testing.T) {
	pub := &recordingPublisher{}
	store := NewMemoryStore(WithPublisher(pub))
	m := NewManager(store, 1, discardLogger(), context.Background())
	m.Throttle = time.Hour

	_, err := m.Start(context.Background(), "generate", func(ctx context.Context, cb progress.Callback) (map[string]string, error) {
		cb(progress.Event{Stage: progress.StagePersona, Message: "first", Step: 1})
		cb(progress.Event{Stage: progress.StagePersona, Message: "second", Step: 2})
		cb(progress.Event{Stage: progress.StagePrompt, Message: "prompt"})
		return nil, nil
	})
	require.NoError(t, err)
	m.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	var msgs []string
	for _, ev := range pub.events {
		msgs = append(msgs, ev.Message)
	}
	assert.Equal(t, []string{"Submitted", "first", "prompt", "Complete"}, msgs)
}

func TestMapStage(t *testing.T) {
	assert.Equal(t, StatusIngesting, mapStage(progress.StageIngest))
	assert.Equal(t, StatusExtracting, mapStage(progress.StageExtract))
	assert.Equal(t, StatusPersona, mapStage(progress.StagePersona))
	assert.Equal(t, StatusPrompt, mapStage(progress.StagePrompt))
	assert.Equal(t, StatusTesting, mapStage(progress.StageDrift))
	assert.Equal(t, StatusSubmitted, mapStage("unknown"))
}
