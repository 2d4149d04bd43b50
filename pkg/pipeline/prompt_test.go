package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/xhad/aba/internal/models"
)

func results(texts ...string) []models.SearchResult {
	out := make([]models.SearchResult, len(texts))
	for i, t := range texts {
		out[i] = models.SearchResult{Chunk: models.Chunk{Index: i, Text: t}, Score: 1 - float64(i)/10}
	}
	return out
}

func TestBuildPromptLayout(t *testing.T) {
	got := BuildPrompt(PromptInput{
		Question: "What is attention?",
		Context:  results("first chunk", "second chunk"),
		History:  []models.ConversationTurn{{Question: "hi", Answer: "hello"}},
	}, 0)

	want := promptInstructions + "\n\n" +
		"first chunk\n\nsecond chunk\n\n" +
		"Chat History:\nHuman: hi\nAssistant: hello\n\n" +
		"Question: What is attention?\nHelpful Answer:"
	assert.Equal(t, want, got)
}

func TestBuildPromptWithoutHistory(t *testing.T) {
	got := BuildPrompt(PromptInput{Question: "q", Context: results("c")}, 0)
	assert.NotContains(t, got, "Chat History:")
}

func TestBuildPromptDropsOldestHistoryFirst(t *testing.T) {
	in := PromptInput{
		Question: "q",
		Context:  results("retrieved passage"),
		History: []models.ConversationTurn{
			{Question: "old question", Answer: strings.Repeat("x", 200)},
			{Question: "recent question", Answer: "short"},
		},
	}
	full := BuildPrompt(in, 0)
	budget := utf8.RuneCountInString(full) - 100

	got := BuildPrompt(in, budget)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), budget)
	assert.NotContains(t, got, "old question")
	assert.Contains(t, got, "recent question")
	assert.Contains(t, got, "retrieved passage")
}

func TestBuildPromptTrimsLowestRankedContext(t *testing.T) {
	in := PromptInput{
		Question: "q",
		Context:  results(strings.Repeat("a", 50), strings.Repeat("b", 50)),
	}
	full := BuildPrompt(in, 0)

	t.Run("partial cut", func(t *testing.T) {
		got := BuildPrompt(in, utf8.RuneCountInString(full)-20)
		assert.Equal(t, utf8.RuneCountInString(full)-20, utf8.RuneCountInString(got))
		assert.Contains(t, got, strings.Repeat("a", 50))
		assert.Contains(t, got, strings.Repeat("b", 30)+"\n\n")
		assert.NotContains(t, got, strings.Repeat("b", 31))
	})

	t.Run("whole chunk dropped", func(t *testing.T) {
		got := BuildPrompt(in, utf8.RuneCountInString(full)-60)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), utf8.RuneCountInString(full)-60)
		assert.NotContains(t, got, "bbb")
		assert.Contains(t, got, strings.Repeat("a", 40))
	})
}

func TestBuildPromptKeepsQuestion(t *testing.T) {
	question := strings.Repeat("why ", 50)
	got := BuildPrompt(PromptInput{
		Question: question,
		Context:  results("retrieved passage"),
		History:  []models.ConversationTurn{{Question: "a", Answer: "b"}},
	}, 10)

	assert.Contains(t, got, "Question: "+question)
	assert.NotContains(t, got, "retrieved passage")
	assert.NotContains(t, got, "Chat History:")
}

func TestBuildPromptCountsRunes(t *testing.T) {
	in := PromptInput{Question: "¿qué?", Context: results("日本語のテキスト")}
	full := BuildPrompt(in, 0)

	got := BuildPrompt(in, utf8.RuneCountInString(full))
	assert.Equal(t, full, got)
	assert.True(t, utf8.ValidString(BuildPrompt(in, utf8.RuneCountInString(full)-3)))
}
