package pipeline

import (
	"strings"
	"unicode/utf8"

	"github.com/xhad/aba/internal/models"
)

const promptInstructions = "Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer."

// PromptInput holds what goes into one question's prompt. Context is ranked
// best first.
type PromptInput struct {
	Question string
	Context  []models.SearchResult
	History  []models.ConversationTurn
}

// BuildPrompt renders the prompt within budget characters. When it does not
// fit, the oldest turns are dropped first, then context text is cut starting
// from the lowest ranked chunk. The question is never shortened, so a
// question longer than the budget still yields an over-budget prompt.
func BuildPrompt(in PromptInput, budget int) string {
	history := append([]models.ConversationTurn(nil), in.History...)
	chunks := make([]string, 0, len(in.Context))
	for _, r := range in.Context {
		chunks = append(chunks, r.Chunk.Text)
	}

	prompt := renderPrompt(in.Question, chunks, history)
	if budget <= 0 {
		return prompt
	}

	for len(history) > 0 && utf8.RuneCountInString(prompt) > budget {
		history = history[1:]
		prompt = renderPrompt(in.Question, chunks, history)
	}

	for len(chunks) > 0 {
		over := utf8.RuneCountInString(prompt) - budget
		if over <= 0 {
			break
		}

		last := []rune(chunks[len(chunks)-1])
		if len(last) <= over {
			chunks = chunks[:len(chunks)-1]
		} else {
			chunks[len(chunks)-1] = string(last[:len(last)-over])
		}
		prompt = renderPrompt(in.Question, chunks, history)
	}

	return prompt
}

func renderPrompt(question string, chunks []string, history []models.ConversationTurn) string {
	var b strings.Builder

	b.WriteString(promptInstructions)
	b.WriteString("\n\n")
	for _, c := range chunks {
		b.WriteString(c)
		b.WriteString("\n\n")
	}

	if len(history) > 0 {
		b.WriteString("Chat History:\n")
		for _, turn := range history {
			b.WriteString("Human: ")
			b.WriteString(turn.Question)
			b.WriteString("\nAssistant: ")
			b.WriteString(turn.Answer)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nHelpful Answer:")

	return b.String()
}
