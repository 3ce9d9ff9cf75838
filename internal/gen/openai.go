package gen

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/rag"
)

// openAIGenerator produces grounded answers through an OpenAI chat model.
type openAIGenerator struct {
	llm       llms.Model
	maxTokens int
	logger    *zap.Logger
}

func newOpenAIGenerator(cfg config.GenerationConfig, logger *zap.Logger) (*openAIGenerator, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai generator: %w", err)
	}
	logger.Info("initialized openai generator", zap.String("model", cfg.Model))
	return &openAIGenerator{llm: llm, maxTokens: cfg.MaxTokens, logger: logger}, nil
}

// Generate prompts the model with the retrieved context and derives
// citations and confidence from the evidence.
func (g *openAIGenerator) Generate(ctx context.Context, question string, chunks []rag.ScoredChunk) (rag.Answer, error) {
	if len(chunks) == 0 {
		return noEvidence(), nil
	}

	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", formatContext(chunks), question)
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, groundedSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := g.llm.GenerateContent(ctx, content,
		llms.WithTemperature(0),
		llms.WithMaxTokens(g.maxTokens),
	)
	if err != nil {
		return rag.Answer{}, fmt.Errorf("openai generation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return rag.Answer{}, fmt.Errorf("openai generation: empty response")
	}
	answer := strings.TrimSpace(resp.Choices[0].Content)

	return rag.Answer{
		Text:           answer,
		Confidence:     assessConfidence(chunks),
		Citations:      buildCitations(answer, chunks),
		GroundingNotes: "Answer generated from retrieved documents using OpenAI.",
	}, nil
}
