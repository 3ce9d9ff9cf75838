// Package embed provides embedding providers behind the rag.Embedder port.
package embed

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/rag"
)

// NewFromConfig builds the embedder selected by cfg.Provider.
func NewFromConfig(cfg config.EmbeddingConfig, logger *zap.Logger) (rag.Embedder, error) {
	switch cfg.Provider {
	case "hash":
		return NewHashEmbedder(cfg.Dimension), nil
	case "openai":
		return newOpenAIEmbedder(cfg, logger)
	case "ollama":
		return newOllamaEmbedder(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}
