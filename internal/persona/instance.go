package persona

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/apresai/roleplay/internal/scenario"
)

// Instance is one concrete character generated for a scenario and mode.
type Instance struct {
	ID                  string   `json:"id,omitempty"`
	ScenarioID          string   `json:"scenario_id,omitempty"`
	Name                string   `json:"name"`
	Age                 int      `json:"age"`
	Gender              string   `json:"gender"`
	Role                string   `json:"role"`
	Description         string   `json:"description"`
	Location            Location `json:"location"`
	Archetype           string   `json:"archetype"`
	ArchetypeConfidence float64  `json:"archetype_confidence"`

	// Details is the ordered set of attached categories. It is the only
	// record of which categories are present.
	Details []Detail `json:"-"`

	ConversationRules  ConversationRules  `json:"conversation_rules"`
	GenerationMetadata GenerationMetadata `json:"generation_metadata"`
}

type Location struct {
	City                    string `json:"city"`
	State                   string `json:"state"`
	Country                 string `json:"country"`
	CurrentPhysicalLocation string `json:"current_physical_location"`
}

func (l Location) String() string {
	var parts []string
	for _, p := range []string{l.City, l.State, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Detail is the generated content for one library category.
type Detail struct {
	Category CategoryName   `json:"category"`
	Fields   map[string]any `json:"fields"`
}

type ConversationRules struct {
	OpeningBehavior string           `json:"opening_behavior"`
	ResponseStyle   string           `json:"response_style"`
	WordLimit       scenario.FlexInt `json:"word_limit"`
	Triggers        Triggers         `json:"triggers"`
}

type Triggers struct {
	Engages          scenario.StringList `json:"engages"`
	Frustrates       scenario.StringList `json:"frustrates"`
	EndsConversation scenario.StringList `json:"ends_conversation"`
}

type GenerationMetadata struct {
	Mode        string    `json:"mode"`
	GeneratedAt time.Time `json:"generated_at"`
	Model       string    `json:"model,omitempty"`
	// SelectedBy is "llm" when the category-selection call succeeded and
	// "fallback" when only required and default categories were used.
	SelectedBy string           `json:"selected_by"`
	Required   []CategoryName   `json:"required_categories,omitempty"`
	Validation ValidationReport `json:"validation"`
}

type ValidationReport struct {
	Issues    []string `json:"issues,omitempty"`
	Fixed     []string `json:"fixed,omitempty"`
	Remaining []string `json:"remaining,omitempty"`
}

// Included returns the attached category names in order.
func (p *Instance) Included() []CategoryName {
	out := make([]CategoryName, len(p.Details))
	for i, d := range p.Details {
		out[i] = d.Category
	}
	return out
}

func (p *Instance) HasCategory(name CategoryName) bool {
	_, ok := p.Detail(name)
	return ok
}

// Detail returns the fields for name.
func (p *Instance) Detail(name CategoryName) (map[string]any, bool) {
	for _, d := range p.Details {
		if d.Category == name {
			return d.Fields, true
		}
	}
	return nil, false
}

// SetDetail replaces or appends the fields for name.
func (p *Instance) SetDetail(name CategoryName, fields map[string]any) {
	for i, d := range p.Details {
		if d.Category == name {
			p.Details[i].Fields = fields
			return
		}
	}
	p.Details = append(p.Details, Detail{Category: name, Fields: fields})
}

type instanceAlias Instance

type instanceJSON struct {
	*instanceAlias
	DetailCategories map[CategoryName]map[string]any `json:"detail_categories"`
	Included         []CategoryName                  `json:"detail_categories_included"`
}

// MarshalJSON writes detail_categories and detail_categories_included from
// the same Details slice, so their key sets always match.
func (p Instance) MarshalJSON() ([]byte, error) {
	out := instanceJSON{
		instanceAlias:    (*instanceAlias)(&p),
		DetailCategories: make(map[CategoryName]map[string]any, len(p.Details)),
		Included:         p.Included(),
	}
	for _, d := range p.Details {
		fields := d.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		out.DetailCategories[d.Category] = fields
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds Details from both fields. Included order wins;
// map keys missing from the list are appended in library order.
func (p *Instance) UnmarshalJSON(data []byte) error {
	in := instanceJSON{instanceAlias: (*instanceAlias)(p)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	p.Details = nil
	seen := make(map[CategoryName]bool)
	for _, name := range in.Included {
		if seen[name] {
			continue
		}
		seen[name] = true
		fields := in.DetailCategories[name]
		if fields == nil {
			fields = map[string]any{}
		}
		p.Details = append(p.Details, Detail{Category: name, Fields: fields})
	}

	var extra []CategoryName
	for name := range in.DetailCategories {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sortByLibrary(extra)
	for _, name := range extra {
		p.Details = append(p.Details, Detail{Category: name, Fields: in.DetailCategories[name]})
	}
	return nil
}
