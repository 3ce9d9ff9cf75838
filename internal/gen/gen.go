// Package gen provides answer generators behind the rag.Generator port.
package gen

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/rag"
)

const (
	noEvidenceAnswer = "I cannot answer this question as no relevant information was found."
	noEvidenceNotes  = "No relevant documents were retrieved."

	groundedSystemPrompt = "You are a helpful and honest assistant. Your task is to answer the user's question " +
		"STRICTLY based on the provided context. " +
		"If the answer is not available in the context, clearly state 'I cannot answer this question based on the provided information.' " +
		"Do not use any prior knowledge. " +
		"For each statement you make, explicitly refer to the source document by its number (e.g., [Source 1]). " +
		"Try to make the answer concise and to the point. " +
		"Ensure that every piece of information in your answer can be traced back to the context."
)

// NewFromConfig builds the generator selected by cfg.Provider.
func NewFromConfig(cfg config.GenerationConfig, logger *zap.Logger) (rag.Generator, error) {
	switch cfg.Provider {
	case "extractive":
		return NewExtractive(logger), nil
	case "openai":
		return newOpenAIGenerator(cfg, logger)
	case "anthropic":
		return newClaudeGenerator(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported generation provider %q", cfg.Provider)
	}
}

// noEvidence is the deterministic response returned when retrieval found
// nothing, without touching any external model.
func noEvidence() rag.Answer {
	return rag.Answer{
		Text:           noEvidenceAnswer,
		Confidence:     rag.ConfidenceLow,
		Citations:      []rag.Citation{},
		GroundingNotes: noEvidenceNotes,
	}
}

// formatContext renders retrieved chunks as numbered sources for a model
// prompt.
func formatContext(chunks []rag.ScoredChunk) string {
	var b strings.Builder
	for i, sc := range chunks {
		fmt.Fprintf(&b, "--- Source %d (Score: %.2f, URL: %s) ---\n", i+1, relevance(sc.Distance), sc.Chunk.DocumentURL)
		b.WriteString(sc.Chunk.TextContent)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// relevance converts a squared L2 distance into a score in (0, 1], where
// 1 means an exact match.
func relevance(distance float32) float32 {
	return 1 / (1 + distance)
}

// buildCitations cites each chunk whose leading words appear in the
// answer, one citation per source URL.
func buildCitations(answer string, chunks []rag.ScoredChunk) []rag.Citation {
	citations := []rag.Citation{}
	cited := map[string]bool{}
	for _, sc := range chunks {
		if cited[sc.Chunk.DocumentURL] {
			continue
		}
		words := strings.Fields(sc.Chunk.TextContent)
		if len(words) > 10 {
			words = words[:10]
		}
		supported := false
		for _, w := range words {
			if strings.Contains(answer, w) {
				supported = true
				break
			}
		}
		if !supported {
			continue
		}
		quote := sc.Chunk.TextContent
		if len(quote) > 100 {
			quote = quote[:100] + "..."
		}
		citations = append(citations, rag.Citation{
			URL:   sc.Chunk.DocumentURL,
			Quote: quote,
			Score: relevance(sc.Distance),
		})
		cited[sc.Chunk.DocumentURL] = true
	}
	return citations
}

// assessConfidence derives the confidence level from evidence count and
// the relevance of the best-scoring chunks. Averaging only the top few
// keeps the level monotonic: adding evidence or improving scores never
// lowers it.
func assessConfidence(chunks []rag.ScoredChunk) rag.Confidence {
	if len(chunks) == 0 {
		return rag.ConfidenceLow
	}
	top := chunks
	if len(top) > 3 {
		top = top[:3]
	}
	var total float32
	for _, sc := range top {
		total += relevance(sc.Distance)
	}
	avg := total / float32(len(top))

	switch {
	case avg > 0.8 && len(chunks) >= 3:
		return rag.ConfidenceHigh
	case avg > 0.6:
		return rag.ConfidenceMedium
	default:
		return rag.ConfidenceLow
	}
}
