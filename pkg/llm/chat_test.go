package llm_test

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/internal/types"
	"github.com/xhad/aba/pkg/llm"
)

type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	m.options = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.options)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestNewWithModel(t *testing.T) {
	tests := []struct {
		name    string
		model   llms.Model
		config  llm.ChatConfig
		wantErr bool
	}{
		{"defaults", &fakeModel{}, llm.ChatConfig{}, false},
		{"custom", &fakeModel{}, llm.ChatConfig{Temperature: 0.5, MaxTokens: 1000, SystemTemplate: "Test system template"}, false},
		{"no model", nil, llm.ChatConfig{}, true},
		{"bad temperature", &fakeModel{}, llm.ChatConfig{Temperature: 3}, true},
		{"negative tokens", &fakeModel{}, llm.ChatConfig{MaxTokens: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.NewWithModel(tt.model, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, engine)
		})
	}
}

func TestComplete(t *testing.T) {
	model := &fakeModel{reply: "  The paper introduces the Transformer.\n"}
	engine, err := llm.NewWithModel(model, llm.ChatConfig{
		Temperature:    0.7,
		MaxTokens:      500,
		SystemTemplate: "Test system template",
	})
	require.NoError(t, err)

	answer, err := engine.Complete(context.Background(), "What does the paper introduce?", 0)
	require.NoError(t, err)
	assert.Equal(t, "The paper introduces the Transformer.", answer)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.TextContent{Text: "Test system template"}, model.messages[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, 500, model.options.MaxTokens)
	assert.Equal(t, 0.7, model.options.Temperature)

	_, err = engine.Complete(context.Background(), "again", 120)
	require.NoError(t, err)
	assert.Equal(t, 120, model.options.MaxTokens)
}

func TestCompleteFailures(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{"service error", &fakeModel{err: errors.New("401 unauthorized")}},
		{"empty answer", &fakeModel{reply: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.NewWithModel(tt.model, llm.ChatConfig{})
			require.NoError(t, err)

			_, err = engine.Complete(context.Background(), "question", 0)
			assert.ErrorIs(t, err, types.ErrSynthesisService)
		})
	}
}

func TestSummarize(t *testing.T) {
	synth := &recordingSynth{reply: "A short summary."}
	s := llm.NewSummarizer(synth, llm.SummaryConfig{MaxInputChars: 10, MaxTokens: 300})

	summary, err := s.Summarize(context.Background(), "0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", summary)
	assert.Contains(t, synth.prompt, "0123456789")
	assert.NotContains(t, synth.prompt, "abcdef")
	assert.Equal(t, 300, synth.maxTokens)

	_, err = s.Summarize(context.Background(), "  ")
	assert.ErrorIs(t, err, types.ErrEmptyDocument)

	failing := llm.NewSummarizer(&recordingSynth{err: errors.New("timeout")}, llm.SummaryConfig{})
	_, err = failing.Summarize(context.Background(), "text")
	assert.ErrorIs(t, err, types.ErrSynthesisService)
}

type recordingSynth struct {
	reply     string
	err       error
	prompt    string
	maxTokens int
}

func (s *recordingSynth) Complete(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	s.prompt = prompt
	s.maxTokens = maxOutputTokens
	return s.reply, s.err
}

func TestNewProvider(t *testing.T) {
	p, err := llm.NewProvider(context.Background(), llm.ProviderConfig{
		Provider:       "ollama",
		BaseURL:        "http://localhost:11434",
		Model:          "mistral",
		EmbeddingModel: "nomic-embed-text:latest",
	})
	require.NoError(t, err)
	assert.NotNil(t, p.Chat)
	assert.NotNil(t, p.Embeddings)

	p, err = llm.NewProvider(context.Background(), llm.ProviderConfig{
		Provider:       "openai",
		APIKey:         "sk-test",
		Model:          "gpt-3.5-turbo",
		EmbeddingModel: "text-embedding-3-small",
	})
	require.NoError(t, err)
	assert.NotNil(t, p.Chat)

	_, err = llm.NewProvider(context.Background(), llm.ProviderConfig{Provider: "gemini"})
	assert.Error(t, err)

	_, err = llm.NewProvider(context.Background(), llm.ProviderConfig{Provider: "claude"})
	assert.Error(t, err)
}

func TestCompleteLogsPromptCharacters(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Set(zap.New(core))
	defer logger.Set(zap.NewNop())

	tests := []struct {
		name   string
		prompt string
	}{
		{"ascii", "What does the paper introduce?"},
		{"multibyte", "この論文は何を紹介していますか"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.NewWithModel(&fakeModel{reply: "ok"}, llm.ChatConfig{})
			require.NoError(t, err)

			_, err = engine.Complete(context.Background(), tt.prompt, 0)
			require.NoError(t, err)

			entries := logs.TakeAll()
			var found bool
			for _, entry := range entries {
				if entry.Message != "generating completion" {
					continue
				}
				found = true
				assert.Equal(t, int64(utf8.RuneCountInString(tt.prompt)), entry.ContextMap()["prompt_chars"])
			}
			assert.True(t, found)
		})
	}
}
