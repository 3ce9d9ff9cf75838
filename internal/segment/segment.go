// Package segment turns raw HTML documents into embeddable text chunks.
package segment

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/rag"
)

// Hasher digests chunk content into stable identifiers.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Segmenter cleans a document's HTML and splits the result into
// overlapping chunks.
type Segmenter struct {
	chunkSize int
	overlap   int
	hasher    Hasher
	logger    *zap.Logger
}

// New creates a Segmenter.
func New(chunkSize, overlap int, hasher Hasher, logger *zap.Logger) *Segmenter {
	return &Segmenter{
		chunkSize: chunkSize,
		overlap:   overlap,
		hasher:    hasher,
		logger:    logger,
	}
}

// Segment extracts the readable text from doc, updates doc.TextContent,
// and returns the chunks with their character offsets into that text.
// Documents with no extractable text yield no chunks.
func (s *Segmenter) Segment(doc *rag.Document) []rag.Chunk {
	if doc.HTMLContent == "" {
		s.logger.Warn("document has no HTML content", zap.String("url", doc.URL))
		return nil
	}

	cleaned := CleanHTML(doc.HTMLContent)
	doc.TextContent = cleaned
	if cleaned == "" {
		s.logger.Warn("no meaningful text extracted", zap.String("url", doc.URL))
		return nil
	}

	title := Title(doc.HTMLContent)
	pieces := ChunkText(cleaned, s.chunkSize, s.overlap)

	chunks := make([]rag.Chunk, 0, len(pieces))
	cursor := 0
	for i, piece := range pieces {
		start := strings.Index(cleaned[cursor:], piece)
		if start >= 0 {
			start += cursor
		} else {
			start = strings.Index(cleaned, piece)
		}
		if start < 0 {
			s.logger.Warn("chunk text not found in cleaned document",
				zap.String("url", doc.URL), zap.Int("chunk", i))
			continue
		}
		end := start + len(piece)
		cursor = end

		meta := map[string]any{"source": doc.URL}
		if title != "" {
			meta["title"] = title
		}
		if !doc.FetchedAt.IsZero() {
			meta["fetched_at"] = doc.FetchedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		for k, v := range doc.Metadata {
			meta[k] = v
		}

		chunks = append(chunks, rag.Chunk{
			ChunkID:     s.chunkID(doc.URL, i, piece),
			DocumentURL: doc.URL,
			TextContent: piece,
			StartIndex:  start,
			EndIndex:    end,
			Metadata:    meta,
		})
	}

	s.logger.Debug("segmented document",
		zap.String("url", doc.URL), zap.Int("chunks", len(chunks)))
	return chunks
}

// chunkID builds a stable identifier of the form <host>-<digest8>-<ordinal>.
func (s *Segmenter) chunkID(rawURL string, ordinal int, content string) string {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	digest, err := s.hasher.Hash([]byte(rawURL + content))
	if err != nil || len(digest) < 8 {
		digest = fmt.Sprintf("%08d", ordinal)
	}
	return fmt.Sprintf("%s-%s-%d", host, digest[:8], ordinal)
}
