// Package jobs tracks background pipeline runs and streams their progress.
package jobs

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusIngesting  Status = "ingesting"
	StatusExtracting Status = "extracting"
	StatusPersona    Status = "generating_persona"
	StatusPrompt     Status = "generating_prompt"
	StatusTesting    Status = "testing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further updates follow this status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

var (
	// ErrNotFound is returned for an unknown job ID.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when updating a job that already finished.
	ErrTerminal = errors.New("job already finished")
	// ErrCapacity is returned when the manager is at its concurrency cap.
	ErrCapacity = errors.New("max concurrent jobs reached")
)

// Job is a snapshot of one background run.
type Job struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Status    Status            `json:"status"`
	Percent   float64           `json:"percent"`
	Message   string            `json:"message,omitempty"`
	Result    map[string]string `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Event is one change to a job as seen by subscribers.
type Event struct {
	JobID   string            `json:"job_id"`
	Status  Status            `json:"status"`
	Percent float64           `json:"percent"`
	Message string            `json:"message,omitempty"`
	Result  map[string]string `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
	At      time.Time         `json:"at"`
}

func (j Job) event() Event {
	return Event{
		JobID:   j.ID,
		Status:  j.Status,
		Percent: j.Percent,
		Message: j.Message,
		Result:  cloneMap(j.Result),
		Error:   j.Error,
		At:      j.UpdatedAt,
	}
}

// Store keeps job state and fans out changes.
//
// Update applies fn to the stored job under the store's lock; fn must not
// block. Subscribe returns a channel that first yields the current snapshot,
// then every later change, and is closed once the job reaches a terminal
// status or ctx ends.
type Store interface {
	Create(ctx context.Context, kind string) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	Update(ctx context.Context, id string, fn func(*Job)) (Job, error)
	Subscribe(ctx context.Context, id string) (<-chan Event, error)
}

// Publisher receives every job event, for mirroring outside the process.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NewID generates a ULID for a new job.
func NewID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
