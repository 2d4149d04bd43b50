package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

// geminiModels is the subset of *genai.Models used here.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Gemini adapts the Gemini API to langchaingo's llms.Model and
// embeddings.EmbedderClient, so it plugs into ChatEngine and Embedder like
// the other providers.
type Gemini struct {
	models         geminiModels
	model          string
	embeddingModel string
}

func NewGemini(ctx context.Context, apiKey, model, embeddingModel string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		models:         client.Models,
		model:          model,
		embeddingModel: embeddingModel,
	}, nil
}

func (g *Gemini) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	// a negative temperature marks the option as not supplied, so an explicit
	// zero still reaches the API
	opts := llms.CallOptions{Temperature: -1}
	for _, opt := range options {
		opt(&opts)
	}

	config := &genai.GenerateContentConfig{}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature >= 0 {
		config.Temperature = genai.Ptr(float32(opts.Temperature))
	}

	var contents []*genai.Content
	for _, msg := range messages {
		text := messageText(msg)
		if text == "" {
			continue
		}
		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: text}}}
		case llms.ChatMessageTypeAI:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: text}}})
		}
	}
	if len(contents) == 0 {
		return nil, errors.New("no content to send")
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, err
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: strings.TrimSpace(resp.Text())}},
	}, nil
}

func (g *Gemini) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g, prompt, options...)
}

// CreateEmbedding embeds every text in a single request.
func (g *Gemini) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: t}}})
	}

	resp, err := g.models.EmbedContent(ctx, g.embeddingModel, contents, nil)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings from gemini", len(texts))
	}

	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if e == nil {
			return nil, errors.New("no embedding values returned")
		}
		vectors = append(vectors, e.Values)
	}
	return vectors, nil
}

func messageText(msg llms.MessageContent) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		if t, ok := part.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

var _ llms.Model = (*Gemini)(nil)
