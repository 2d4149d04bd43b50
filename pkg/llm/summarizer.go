package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xhad/aba/internal/types"
)

const summaryPrompt = "Please provide a concise summary of the following academic paper for someone that is non-technical. Focus on the main ideas, methodology, and conclusions:\n\n%s"

type SummaryConfig struct {
	MaxInputChars int
	MaxTokens     int
}

// Summarizer writes a plain-language summary of a paper from the start of
// its text.
type Summarizer struct {
	config SummaryConfig
	engine types.Synthesizer
}

// NewSummarizer expects an engine configured with SummarySystemTemplate.
func NewSummarizer(engine types.Synthesizer, config SummaryConfig) *Summarizer {
	if config.MaxInputChars <= 0 {
		config.MaxInputChars = 4000
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 300
	}
	return &Summarizer{config: config, engine: engine}
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", types.ErrEmptyDocument
	}

	runes := []rune(text)
	if len(runes) > s.config.MaxInputChars {
		runes = runes[:s.config.MaxInputChars]
	}

	summary, err := s.engine.Complete(ctx, fmt.Sprintf(summaryPrompt, string(runes)), s.config.MaxTokens)
	if err != nil {
		if errors.Is(err, types.ErrSynthesisService) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", types.ErrSynthesisService, err)
	}
	return summary, nil
}
