package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apresai/roleplay/internal/persona"
	"github.com/apresai/roleplay/internal/scenario"
)

type entry struct {
	doc    []byte
	parent string
	seq    int
}

// Memory is a Store held in process memory. Documents are kept as JSON so
// callers never share mutable state with the store.
type Memory struct {
	mu        sync.RWMutex
	scenarios map[string]entry
	personas  map[string]entry
	prompts   map[string]entry
	seq       int
	now       func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		scenarios: make(map[string]entry),
		personas:  make(map[string]entry),
		prompts:   make(map[string]entry),
		now:       time.Now,
	}
}

func (m *Memory) put(table map[string]entry, id, parent string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.seq
	if old, ok := table[id]; ok {
		seq = old.seq
	} else {
		m.seq++
	}
	table[id] = entry{doc: data, parent: parent, seq: seq}
	return nil
}

func (m *Memory) get(table map[string]entry, kind, id string, v any) error {
	m.mu.RLock()
	e, ok := table[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("get %s %s: %w", kind, id, ErrNotFound)
	}
	if err := json.Unmarshal(e.doc, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return nil
}

// sorted returns entries in insertion order, optionally filtered by parent.
func (m *Memory) sorted(table map[string]entry, parent string) []entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entry
	for _, e := range table {
		if parent != "" && e.parent != parent {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (m *Memory) PutScenario(_ context.Context, td *scenario.TemplateData) error {
	ensureID(&td.ID)
	return m.put(m.scenarios, td.ID, "", td)
}

func (m *Memory) GetScenario(_ context.Context, id string) (*scenario.TemplateData, error) {
	var td scenario.TemplateData
	if err := m.get(m.scenarios, "scenario", id, &td); err != nil {
		return nil, err
	}
	return &td, nil
}

func (m *Memory) ListScenarios(_ context.Context) ([]*scenario.TemplateData, error) {
	var out []*scenario.TemplateData
	for _, e := range m.sorted(m.scenarios, "") {
		var td scenario.TemplateData
		if err := json.Unmarshal(e.doc, &td); err != nil {
			return nil, fmt.Errorf("decode scenario: %w", err)
		}
		out = append(out, &td)
	}
	return out, nil
}

func (m *Memory) PutPersona(_ context.Context, p *persona.Instance) error {
	ensureID(&p.ID)
	return m.put(m.personas, p.ID, p.ScenarioID, p)
}

func (m *Memory) GetPersona(_ context.Context, id string) (*persona.Instance, error) {
	var p persona.Instance
	if err := m.get(m.personas, "persona", id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *Memory) ListPersonas(_ context.Context, scenarioID string) ([]*persona.Instance, error) {
	var out []*persona.Instance
	for _, e := range m.sorted(m.personas, scenarioID) {
		var p persona.Instance
		if err := json.Unmarshal(e.doc, &p); err != nil {
			return nil, fmt.Errorf("decode persona: %w", err)
		}
		out = append(out, &p)
	}
	return out, nil
}

func (m *Memory) PutPrompt(_ context.Context, rec *PromptRecord) error {
	ensureID(&rec.ID)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now().UTC()
	}
	return m.put(m.prompts, rec.ID, rec.ScenarioID, rec)
}

func (m *Memory) GetPrompt(_ context.Context, id string) (*PromptRecord, error) {
	var rec PromptRecord
	if err := m.get(m.prompts, "prompt", id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
