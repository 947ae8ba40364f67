package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func plainRenderer(buf *bytes.Buffer) *BarRenderer {
	return &BarRenderer{out: buf, start: time.Now(), width: 80}
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "[##########]", renderBar(1, 10))
	assert.Equal(t, "[#####.....]", renderBar(0.5, 10))
	assert.Equal(t, "[..........]", renderBar(-1, 10))
	assert.Equal(t, "[##########]", renderBar(3, 10))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:00", formatElapsed(0))
	assert.Equal(t, "1:05", formatElapsed(65*time.Second))
	assert.Equal(t, "12:00", formatElapsed(12*time.Minute))
}

func TestScale(t *testing.T) {
	assert.InDelta(t, 0.05, Scale(StageExtract, 0), 1e-9)
	assert.InDelta(t, 0.30, Scale(StageExtract, 1), 1e-9)
	assert.InDelta(t, 0.45, Scale(StagePersona, 0.5), 1e-9)
	assert.InDelta(t, 0.60, Scale(StagePersona, 7), 1e-9)
	assert.Equal(t, 1.0, Scale(StageComplete, 0))
}

func TestPlainRendererSkipsSubSteps(t *testing.T) {
	var buf bytes.Buffer
	r := plainRenderer(&buf)

	r.Handle(Event{Stage: StagePersona, Message: "Generating persona"})
	r.Handle(Event{Stage: StagePersona, Message: "Category 1", Step: 1, StepTotal: 4})
	r.Handle(Event{Stage: StagePersona, Message: "Category 2", Step: 2, StepTotal: 4})
	r.Handle(Event{Stage: StagePrompt, Message: "Writing prompt"})

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, "Generating persona")
	assert.Contains(t, out, "Writing prompt")
	assert.NotContains(t, out, "Category 2")
}

func TestFinishSummary(t *testing.T) {
	var buf bytes.Buffer
	r := plainRenderer(&buf)
	r.Handle(Event{
		Stage:      StageComplete,
		Message:    "Done",
		ScenarioID: "sc-1",
		PersonaID:  "p-1",
		PromptFile: "out/prompt.txt",
	})
	buf.Reset()
	r.Finish()

	out := buf.String()
	assert.Contains(t, out, "Scenario: sc-1")
	assert.Contains(t, out, "Persona: p-1")
	assert.Contains(t, out, "Prompt saved to out/prompt.txt")
	assert.NotContains(t, out, "Report saved")
}

func TestFinishError(t *testing.T) {
	var buf bytes.Buffer
	r := plainRenderer(&buf)
	r.Handle(Event{Stage: StageExtract, Message: "Extracting", Error: errors.New("boom")})
	buf.Reset()
	r.Finish()
	assert.Contains(t, buf.String(), "Error: boom")
}
