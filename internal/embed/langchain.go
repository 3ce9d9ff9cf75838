package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/metrics"
)

// remoteEmbedder wraps a langchaingo embedder with the batch contract the
// pipeline relies on: one vector per input, zero vectors standing in for
// failed items so chunk and vector slices stay aligned.
type remoteEmbedder struct {
	inner     embeddings.Embedder
	dimension int
	logger    *zap.Logger
}

func newOpenAIEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (*remoteEmbedder, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithEmbeddingModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	inner, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("init openai embedder: %w", err)
	}
	logger.Info("initialized openai embedder", zap.String("model", cfg.Model))
	return &remoteEmbedder{inner: inner, dimension: cfg.Dimension, logger: logger}, nil
}

func newOllamaEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (*remoteEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text:latest"
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init ollama client: %w", err)
	}
	inner, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("init ollama embedder: %w", err)
	}
	logger.Info("initialized ollama embedder", zap.String("model", model))
	return &remoteEmbedder{inner: inner, dimension: cfg.Dimension, logger: logger}, nil
}

// EmbedBatch embeds texts through the backing model. A wholesale provider
// failure degrades to zero vectors rather than an error so that one bad
// batch does not abort an entire job; callers that need the signal check
// for all-zero output.
func (e *remoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	vectors, err := e.inner.EmbedDocuments(ctx, texts)
	metrics.ObserveEmbedBatch(time.Since(start))
	if err != nil {
		e.logger.Error("embedding batch failed", zap.Int("texts", len(texts)), zap.Error(err))
		return e.zeroBatch(len(texts)), nil
	}
	if len(vectors) != len(texts) {
		e.logger.Error("embedding batch size mismatch",
			zap.Int("want", len(texts)), zap.Int("got", len(vectors)))
		return e.zeroBatch(len(texts)), nil
	}

	if e.dimension == 0 {
		for _, v := range vectors {
			if len(v) > 0 {
				e.dimension = len(v)
				break
			}
		}
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			e.logger.Warn("embedding dimension mismatch, replacing with zeros",
				zap.Int("item", i), zap.Int("want", e.dimension), zap.Int("got", len(v)))
			vectors[i] = make([]float32, e.dimension)
		}
	}
	return vectors, nil
}

// EmbedOne embeds a single text. Unlike EmbedBatch it surfaces provider
// errors, since ask-time callers need to distinguish failure from an
// empty result.
func (e *remoteEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if e.dimension == 0 {
		e.dimension = len(vec)
	}
	return vec, nil
}

func (e *remoteEmbedder) zeroBatch(n int) [][]float32 {
	dim := e.dimension
	if dim == 0 {
		dim = 1
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
	}
	return out
}
