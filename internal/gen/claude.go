package gen

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/rag"
)

// claudeGenerator produces grounded answers through the Anthropic API.
type claudeGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

func newClaudeGenerator(cfg config.GenerationConfig, logger *zap.Logger) (*claudeGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic generator requires an api key")
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	logger.Info("initialized anthropic generator", zap.String("model", model))
	return &claudeGenerator{
		client:    client,
		model:     model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}, nil
}

// Generate prompts the model with the retrieved context and derives
// citations and confidence from the evidence.
func (g *claudeGenerator) Generate(ctx context.Context, question string, chunks []rag.ScoredChunk) (rag.Answer, error) {
	if len(chunks) == 0 {
		return noEvidence(), nil
	}

	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", formatContext(chunks), question)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: groundedSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return rag.Answer{}, fmt.Errorf("anthropic generation: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return rag.Answer{}, fmt.Errorf("anthropic generation: empty response")
	}

	return rag.Answer{
		Text:           answer,
		Confidence:     assessConfidence(chunks),
		Citations:      buildCitations(answer, chunks),
		GroundingNotes: "Answer generated from retrieved documents using Anthropic.",
	}, nil
}
