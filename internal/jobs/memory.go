package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const subscriberBuffer = 16

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

// MemoryStore is a process-local Store guarded by a single mutex.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	subs map[string][]*subscriber

	pub Publisher
	log *slog.Logger
	now func() time.Time
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithPublisher mirrors every event to p after the store lock is released.
// Publish failures are logged and otherwise ignored.
func WithPublisher(p Publisher) Option {
	return func(s *MemoryStore) { s.pub = p }
}

// WithLogger sets the logger used for publish failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *MemoryStore) { s.log = l }
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		jobs: make(map[string]*Job),
		subs: make(map[string][]*subscriber),
		log:  slog.Default(),
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create registers a new submitted job.
func (s *MemoryStore) Create(ctx context.Context, kind string) (Job, error) {
	id, err := NewID()
	if err != nil {
		return Job{}, err
	}
	now := s.now().UTC()
	j := &Job{
		ID:        id,
		Kind:      kind,
		Status:    StatusSubmitted,
		Message:   "Submitted",
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.jobs[id] = j
	snap := s.snapshot(j)
	s.mu.Unlock()

	s.publish(ctx, snap.event())
	return snap, nil
}

// Get returns a copy of the job.
func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return s.snapshot(j), nil
}

// Update mutates the job, notifies subscribers and closes their channels
// when the new status is terminal.
func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*Job)) (Job, error) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return Job{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if j.Status.Terminal() {
		s.mu.Unlock()
		return Job{}, fmt.Errorf("update %s: %w", id, ErrTerminal)
	}

	fn(j)
	j.ID = id
	j.UpdatedAt = s.now().UTC()
	snap := s.snapshot(j)
	ev := snap.event()

	for _, sub := range s.subs[id] {
		deliver(sub.ch, ev)
	}
	if j.Status.Terminal() {
		for _, sub := range s.subs[id] {
			close(sub.ch)
			close(sub.done)
		}
		delete(s.subs, id)
	}
	s.mu.Unlock()

	s.publish(ctx, ev)
	return snap, nil
}

// Subscribe streams the job's events until it finishes or ctx ends.
func (s *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("subscribe %s: %w", id, ErrNotFound)
	}

	ch := make(chan Event, subscriberBuffer)
	ch <- s.snapshot(j).event()
	if j.Status.Terminal() {
		close(ch)
		return ch, nil
	}

	sub := &subscriber{ch: ch, done: make(chan struct{})}
	s.subs[id] = append(s.subs[id], sub)

	go func() {
		select {
		case <-sub.done:
		case <-ctx.Done():
			s.unsubscribe(id, sub)
		}
	}()
	return ch, nil
}

func (s *MemoryStore) unsubscribe(id string, target *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[id]
	for i, sub := range subs {
		if sub == target {
			s.subs[id] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			close(sub.done)
			break
		}
	}
	if len(s.subs[id]) == 0 {
		delete(s.subs, id)
	}
}

func (s *MemoryStore) snapshot(j *Job) Job {
	out := *j
	out.Result = cloneMap(j.Result)
	return out
}

func (s *MemoryStore) publish(ctx context.Context, ev Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.WarnContext(ctx, "Publish job event failed", "job_id", ev.JobID, "error", err)
	}
}

// deliver never blocks: a full buffer drops its oldest event so the newest,
// and in particular the terminal one, always lands. Only the store sends on
// ch, and it does so under the store lock.
func deliver(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- ev
}
