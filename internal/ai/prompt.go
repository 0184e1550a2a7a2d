package ai

import (
	"strings"
)

// DefaultSystemPrompt is the instruction sent with every chat turn.
const DefaultSystemPrompt = "You are really good at coding and connect your existing skill " +
	"and combined with new knowledge from given context. Answer the QUESTION using the CONTEXT " +
	"when it is relevant and the HISTORY for continuity. If the CONTEXT does not cover the " +
	"question, answer from general knowledge and say so."

// Prompt is one generation request.
type Prompt struct {
	System   string   // instruction; DefaultSystemPrompt when empty
	Context  string   // retrieved chunk text, may be empty
	History  []string // prior message contents, oldest first
	Question string   // the triggering user message
}

// Render lays the prompt out as the user-turn body:
//
//	CONTEXT:
//	...
//
//	HISTORY:
//	...
//
//	QUESTION:
//	...
func (p Prompt) Render() string {
	var b strings.Builder
	b.WriteString("CONTEXT:\n")
	b.WriteString(strings.TrimSpace(p.Context))
	b.WriteString("\n\nHISTORY:\n")
	b.WriteString(strings.Join(p.History, "\n"))
	b.WriteString("\n\nQUESTION:\n")
	b.WriteString(strings.TrimSpace(p.Question))
	return b.String()
}

func (p Prompt) system() string {
	if strings.TrimSpace(p.System) == "" {
		return DefaultSystemPrompt
	}
	return p.System
}
