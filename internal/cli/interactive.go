package cli

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/apresai/roleplay/internal/drift"
	"github.com/apresai/roleplay/internal/llm"
)

// menuItem is one configurable option in the setup wizard.
type menuItem struct {
	label    string
	value    string
	options  []menuOption
	required bool
	editing  bool
	cursor   int // cursor within options when editing
	hint     string
}

type menuOption struct {
	label string
	value string
}

type menuState int

const (
	stateMenu menuState = iota
	stateEditing
)

type tuiModel struct {
	items     []menuItem
	cursor    int
	state     menuState
	width     int
	err       error
	confirmed bool
	cancelled bool
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	menuLabelStyle = lipgloss.NewStyle().
			Width(16).
			Align(lipgloss.Right).
			MarginRight(2)

	menuValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	menuValueDimStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#555555")).
				Italic(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	requiredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	optionStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	selectedOptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#04B575")).
				Bold(true).
				PaddingLeft(2)

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 3)

	buttonDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(0, 3)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)
)

const (
	idxInput = iota
	idxOutput
	idxMode
	idxGender
	idxLayout
	idxProvider
	idxCustom
	idxDrift
	idxGenerate
)

const driftOff = "off"

func providerOptions() []menuOption {
	var opts []menuOption
	for _, name := range llm.ProviderNames() {
		opts = append(opts, menuOption{label: name, value: name})
	}
	return opts
}

func buildMenuItems() []menuItem {
	items := []menuItem{
		idxInput:  {label: "Scenario", value: flagInput, required: true, hint: "(URL, PDF or text file)"},
		idxOutput: {label: "Output dir", value: flagOutputDir},
		idxMode: {label: "Mode", value: modeValue(flagMode), options: []menuOption{
			{"Learn - character teaches and models the skill", "learn"},
			{"Assess - character evaluates the learner", "assess"},
			{"Try - low-stakes practice", "try"},
		}},
		idxGender: {label: "Gender", value: firstNonEmpty(flagGender, "female"), options: []menuOption{
			{"Female", "female"},
			{"Male", "male"},
		}},
		idxLayout: {label: "Prompt layout", value: firstNonEmpty(flagLayout, "architect"), options: []menuOption{
			{"Architect - 6 sections", "architect"},
			{"Extended - 8 sections with flow and evaluation signals", "extended"},
		}},
		idxProvider: {label: "LLM provider", value: firstNonEmpty(flagProvider, llm.ConfigFromEnv().Provider), options: providerOptions()},
		idxCustom:   {label: "Custom prompt", value: flagCustomPrompt, hint: "(optional - extra persona guidance)"},
		idxDrift: {label: "Drift test", value: driftValue(), options: []menuOption{
			{"Off", driftOff},
			{"Drift - helpful, dismissive, confused, mixed learners", string(drift.KindDrift)},
			{"Strength - quality, jailbreak, confusion, coaching", string(drift.KindStrength)},
			{"Comprehensive - all eight profiles", string(drift.KindComprehensive)},
		}},
		idxGenerate: {label: "Generate"},
	}

	for i := range items {
		for j, opt := range items[i].options {
			if opt.value == items[i].value {
				items[i].cursor = j
				break
			}
		}
	}
	return items
}

func modeValue(s string) string {
	s = strings.TrimSuffix(strings.ToLower(s), "_mode")
	if s == "" {
		return "assess"
	}
	return s
}

func driftValue() string {
	if !flagDrift {
		return driftOff
	}
	return firstNonEmpty(flagDriftKind, string(drift.KindDrift))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func initialTUIModel() tuiModel {
	return tuiModel{items: buildMenuItems(), cursor: idxInput, state: stateMenu}
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) isTextInput(idx int) bool {
	return idx == idxInput || idx == idxOutput || idx == idxCustom
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateMenu:
			return m.updateMenu(msg)
		case stateEditing:
			return m.updateEditing(msg)
		}
	}
	return m, nil
}

func (m tuiModel) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.cancelled = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "enter", " ":
		if m.cursor == idxGenerate {
			if strings.TrimSpace(m.items[idxInput].value) == "" {
				m.err = errors.New("scenario input is required")
				return m, nil
			}
			m.confirmed = true
			return m, tea.Quit
		}
		if m.isTextInput(m.cursor) || len(m.items[m.cursor].options) > 0 {
			m.state = stateEditing
			m.items[m.cursor].editing = true
			m.err = nil
		}
	}
	return m, nil
}

func (m tuiModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	item := &m.items[m.cursor]

	if m.isTextInput(m.cursor) {
		switch msg.String() {
		case "enter":
			item.editing = false
			m.state = stateMenu
			m.advance()
		case "esc":
			item.editing = false
			m.state = stateMenu
		case "backspace":
			if r := []rune(item.value); len(r) > 0 {
				item.value = string(r[:len(r)-1])
			}
		case "ctrl+u":
			item.value = ""
		default:
			if msg.Type == tea.KeyRunes {
				item.value += string(msg.Runes)
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "enter", " ":
		if item.cursor >= 0 && item.cursor < len(item.options) {
			item.value = item.options[item.cursor].value
		}
		item.editing = false
		m.state = stateMenu
		m.advance()

	case "esc":
		item.editing = false
		m.state = stateMenu

	case "up", "k":
		if item.cursor > 0 {
			item.cursor--
		}

	case "down", "j":
		if item.cursor < len(item.options)-1 {
			item.cursor++
		}
	}
	return m, nil
}

func (m *tuiModel) advance() {
	if m.cursor < len(m.items)-1 {
		m.cursor++
	}
}

func (m tuiModel) View() string {
	var b strings.Builder

	b.WriteString(headerBorder.Render(titleStyle.Render("Role-play Prompt Builder")))
	b.WriteString("\n")

	for i, item := range m.items {
		isActive := m.cursor == i

		if i == idxGenerate {
			b.WriteString("\n")
			if isActive {
				b.WriteString("  " + buttonStyle.Render(" Generate "))
			} else {
				b.WriteString("  " + buttonDimStyle.Render(" Generate "))
			}
			b.WriteString("\n")
			continue
		}

		cursor := "  "
		if isActive {
			cursor = cursorStyle.Render("> ")
		}

		label := item.label
		if item.required {
			label += requiredStyle.Render("*")
		}

		var value string
		switch {
		case item.editing && m.isTextInput(i):
			value = menuValueStyle.Render(item.value + "_")
		case item.value == "":
			value = menuValueDimStyle.Render(firstNonEmpty(item.hint, "(not set)"))
		default:
			display := item.value
			for _, opt := range item.options {
				if opt.value == item.value {
					display = opt.label
					break
				}
			}
			value = menuValueStyle.Render(display)
		}
		b.WriteString(cursor + menuLabelStyle.Render(label) + " " + value + "\n")

		if item.editing && len(item.options) > 0 {
			for j, opt := range item.options {
				if j == item.cursor {
					b.WriteString(selectedOptionStyle.Render("> "+opt.label) + "\n")
				} else {
					b.WriteString(optionStyle.Render("  "+opt.label) + "\n")
				}
			}
		}
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}

	switch m.state {
	case stateMenu:
		b.WriteString(helpStyle.Render("  j/k or arrows to navigate | enter to edit | q to quit"))
	case stateEditing:
		if m.isTextInput(m.cursor) {
			b.WriteString(helpStyle.Render("  type value | enter to confirm | esc to cancel | ctrl+u to clear"))
		} else {
			b.WriteString(helpStyle.Render("  j/k or arrows to pick | enter to select | esc to cancel"))
		}
	}
	b.WriteString("\n")
	return b.String()
}

// apply copies the wizard's choices onto the generate flags.
func (m tuiModel) apply() {
	flagInput = strings.TrimSpace(m.items[idxInput].value)
	if v := strings.TrimSpace(m.items[idxOutput].value); v != "" {
		flagOutputDir = v
	}
	flagMode = m.items[idxMode].value
	flagGender = m.items[idxGender].value
	flagLayout = m.items[idxLayout].value
	flagProvider = m.items[idxProvider].value
	flagCustomPrompt = m.items[idxCustom].value
	if kind := m.items[idxDrift].value; kind != driftOff {
		flagDrift = true
		flagDriftKind = kind
	} else {
		flagDrift = false
	}
	flagFromScenario = ""
}

func runInteractiveSetup() error {
	p := tea.NewProgram(initialTUIModel(), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tuiModel)
	if final.cancelled {
		return fmt.Errorf("cancelled")
	}
	if !final.confirmed {
		return fmt.Errorf("generation cancelled")
	}
	final.apply()
	return nil
}
