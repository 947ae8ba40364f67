package drift

import (
	"fmt"
	"strings"

	"github.com/apresai/roleplay/internal/llm"
	"github.com/apresai/roleplay/internal/prompt"
)

const judgeSystem = `You are a strict evaluator of role-play training characters. You judge whether an
AI character stays in role, behaves realistically and follows its system prompt. Respond only with JSON.`

func learnerSystem(in RunInput) string {
	var b strings.Builder
	b.WriteString("You are role-playing a LEARNER in a professional training simulation. ")
	b.WriteString("Another AI plays the character you are practicing with.\n\n")
	fmt.Fprintf(&b, "LEARNER PROFILE (%s):\n%s\n\n", in.Profile.Name, in.Profile.Brief)
	if td := in.Scenario; td != nil {
		md := td.ModeDescriptions.Mode(in.Mode)
		fmt.Fprintf(&b, "YOUR ROLE: %s\nSITUATION: %s\n", md.LearnerRole, md.WhatHappens)
		if len(td.DomainKnowledge.ConversationTopics) > 0 {
			fmt.Fprintf(&b, "TOPICS YOU MIGHT RAISE: %s\n", strings.Join(td.DomainKnowledge.ConversationTopics, "; "))
		}
		b.WriteString("\n")
	}
	b.WriteString("Reply with your next line of dialogue only, one to three sentences, no stage directions.")
	return b.String()
}

func judgeTurnPrompt(in RunInput, transcript []llm.Message, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score turn %d of this conversation. The learner profile is %s.\n\n", n, in.Profile.Name)
	b.WriteString("CHARACTER SYSTEM PROMPT (excerpt):\n")
	b.WriteString(excerpt(in.Prompt, 1500))
	b.WriteString("\n\nCONVERSATION SO FAR:\n")
	b.WriteString(formatTranscript(transcript))
	b.WriteString(`
Score the character's LATEST reply from 0 to 100 on:
- role_consistency: stays in character, never acts as an assistant or coach
- push_back: resists weak or wrong learner behavior the way the character would
- topic_coverage: stays on the scenario's topics and uses the character's details
- emotional_appropriateness: emotional reaction fits the character and the learner's behavior
- language_structure: natural length, tone and wording for a spoken conversation

Return JSON: {"role_consistency": 0, "push_back": 0, "topic_coverage": 0,
"emotional_appropriateness": 0, "language_structure": 0, "notes": ""}`)
	return b.String()
}

func judgeEndingPrompt(in RunInput, turns []Turn, finished bool) string {
	var b strings.Builder
	b.WriteString("Evaluate how this conversation ended.\n\n")
	fmt.Fprintf(&b, "LEARNER PROFILE: %s\n", in.Profile.Name)
	fmt.Fprintf(&b, "CHARACTER EMITTED %s: %t\n\n", prompt.FinishToken, finished)
	for _, t := range lastTurns(turns, 3) {
		fmt.Fprintf(&b, "LEARNER: %s\nCHARACTER: %s\n", t.Learner, t.Character)
	}
	b.WriteString(`
Decide the closing valence (positive, negative or neutral) and whether it is appropriate given how the
learner performed across the conversation.

Return JSON: {"closing_valence": "positive", "appropriate": true, "notes": ""}`)
	return b.String()
}

func formatTranscript(msgs []llm.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		speaker := "LEARNER"
		if m.Role == llm.RoleAssistant {
			speaker = "CHARACTER"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	return b.String()
}

func lastTurns(turns []Turn, n int) []Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func excerpt(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars] + "\n[...]"
}
