package gen

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/rag"
	"github.com/quarrylabs/quarry/internal/segment"
)

const cannotAnswerFromContext = "I cannot answer this question based on the provided information."

// Extractive answers questions by quoting sentences from the retrieved
// chunks that share keywords with the question. It needs no external
// model, which makes it the default for development and tests.
type Extractive struct {
	logger *zap.Logger
}

// NewExtractive creates an Extractive generator.
func NewExtractive(logger *zap.Logger) *Extractive {
	return &Extractive{logger: logger}
}

// Generate selects up to three supporting sentences across the retrieved
// chunks, tagging each with its source number.
func (g *Extractive) Generate(ctx context.Context, question string, chunks []rag.ScoredChunk) (rag.Answer, error) {
	if err := ctx.Err(); err != nil {
		return rag.Answer{}, err
	}
	if len(chunks) == 0 {
		return noEvidence(), nil
	}

	keywords := questionKeywords(question)
	var picked []string
	for i, sc := range chunks {
		if len(picked) == 3 {
			break
		}
		best, score := bestSentence(sc.Chunk.TextContent, keywords)
		if score == 0 {
			continue
		}
		picked = append(picked, fmt.Sprintf("%s [Source %d]", best, i+1))
	}

	if len(picked) == 0 {
		return rag.Answer{
			Text:           cannotAnswerFromContext,
			Confidence:     rag.ConfidenceLow,
			Citations:      []rag.Citation{},
			GroundingNotes: "Retrieved documents did not mention the question's terms.",
		}, nil
	}

	answer := strings.Join(picked, " ")
	g.logger.Debug("extractive answer assembled",
		zap.Int("chunks", len(chunks)), zap.Int("sentences", len(picked)))

	return rag.Answer{
		Text:           answer,
		Confidence:     assessConfidence(chunks),
		Citations:      buildCitations(answer, chunks),
		GroundingNotes: "Answer assembled from sentences quoted verbatim from retrieved documents.",
	}, nil
}

// bestSentence returns the sentence in text sharing the most keywords
// with the question, along with its overlap count.
func bestSentence(text string, keywords map[string]bool) (string, int) {
	var best string
	bestScore := 0
	for _, sentence := range segment.SplitSentences(text) {
		score := 0
		for _, w := range strings.Fields(strings.ToLower(sentence)) {
			if keywords[strings.TrimFunc(w, unicode.IsPunct)] {
				score++
			}
		}
		if score > bestScore {
			best = strings.TrimSpace(sentence)
			bestScore = score
		}
	}
	return best, bestScore
}

// stopwords excluded from keyword matching.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "can": true,
	"do": true, "does": true, "for": true, "how": true, "i": true,
	"in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "the": true, "to": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "why": true, "with": true,
}

func questionKeywords(question string) map[string]bool {
	keywords := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.TrimFunc(w, unicode.IsPunct)
		if w != "" && !stopwords[w] {
			keywords[w] = true
		}
	}
	return keywords
}
