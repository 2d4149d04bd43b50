package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/internal/types"
)

const (
	DefaultSystemTemplate = "You are a helpful assistant that answers questions about academic papers. Use only the provided context; if the answer is not in it, say that you don't know."
	SummarySystemTemplate = "You are a helpful assistant that summarizes academic papers."
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
}

// ChatEngine turns a prompt into an answer with an LLM. It implements
// types.Synthesizer.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithModel creates a new ChatEngine on top of an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = DefaultSystemTemplate
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// Complete sends the prompt and returns the trimmed answer. maxOutputTokens
// overrides the configured limit when positive. An empty answer is treated
// as a failure.
func (ce *ChatEngine) Complete(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	if maxOutputTokens <= 0 {
		maxOutputTokens = ce.config.MaxTokens
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	logger.L().Debug("generating completion",
		zap.Int("prompt_chars", utf8.RuneCountInString(prompt)),
		zap.Int("max_tokens", maxOutputTokens))

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(maxOutputTokens),
		llms.WithTemperature(ce.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrSynthesisService, err)
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("%w: no response from LLM", types.ErrSynthesisService)
	}

	answer := strings.TrimSpace(response.Choices[0].Content)
	if answer == "" {
		return "", fmt.Errorf("%w: empty response from LLM", types.ErrSynthesisService)
	}

	return answer, nil
}

var _ types.Synthesizer = (*ChatEngine)(nil)
