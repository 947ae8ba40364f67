// Package store persists scenarios, personas and generated prompts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/apresai/roleplay/internal/persona"
	"github.com/apresai/roleplay/internal/prompt"
	"github.com/apresai/roleplay/internal/scenario"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// PromptRecord is a generated system prompt and the inputs it was built from.
type PromptRecord struct {
	ID         string            `json:"id"`
	ScenarioID string            `json:"scenario_id"`
	PersonaID  string            `json:"persona_id"`
	Mode       string            `json:"mode"`
	Layout     string            `json:"layout"`
	Text       string            `json:"text"`
	Validation prompt.Validation `json:"validation"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Store is the document store behind the pipeline. Put methods assign an ID
// when the document has none and overwrite any existing document with the
// same ID.
type Store interface {
	PutScenario(ctx context.Context, td *scenario.TemplateData) error
	GetScenario(ctx context.Context, id string) (*scenario.TemplateData, error)
	ListScenarios(ctx context.Context) ([]*scenario.TemplateData, error)

	PutPersona(ctx context.Context, p *persona.Instance) error
	GetPersona(ctx context.Context, id string) (*persona.Instance, error)
	ListPersonas(ctx context.Context, scenarioID string) ([]*persona.Instance, error)

	PutPrompt(ctx context.Context, rec *PromptRecord) error
	GetPrompt(ctx context.Context, id string) (*PromptRecord, error)
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
