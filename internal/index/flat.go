// Package index implements a per-job flat L2 vector index persisted to
// disk as a vectors/metadata/id-map file triple.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/metrics"
	"github.com/quarrylabs/quarry/internal/rag"
)

// Flat is an exact (brute force) L2 index. Each job owns an independent
// index identified by its job ID; the three on-disk files for a job are
// written together and treated as absent unless all three exist.
type Flat struct {
	dir       string
	batchSize int
	logger    *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*jobIndex
}

type jobIndex struct {
	dimension int
	vectors   [][]float32
	metadata  map[string]rag.Chunk
	idMap     []string
}

// New creates a Flat index rooted at dir and loads every complete file
// triple found there. Incomplete triples are deleted.
func New(dir string, batchSize int, logger *zap.Logger) (*Flat, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	f := &Flat{
		dir:       dir,
		batchSize: batchSize,
		logger:    logger,
		jobs:      make(map[string]*jobIndex),
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadAllLocked(); err != nil {
		return nil, err
	}
	logger.Info("vector index initialized",
		zap.String("dir", dir), zap.Int("indexes", len(f.jobs)))
	return f, nil
}

func (f *Flat) vectorsPath(jobID string) string {
	return filepath.Join(f.dir, fmt.Sprintf("index_%s.bin", jobID))
}

func (f *Flat) metadataPath(jobID string) string {
	return filepath.Join(f.dir, fmt.Sprintf("metadata_%s.json", jobID))
}

func (f *Flat) idMapPath(jobID string) string {
	return filepath.Join(f.dir, fmt.Sprintf("id_map_%s.json", jobID))
}

func (f *Flat) loadAllLocked() error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("read index dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "index_") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		jobID := strings.TrimSuffix(strings.TrimPrefix(name, "index_"), ".bin")
		if err := f.loadJobLocked(jobID); err != nil {
			f.logger.Error("failed to load index, removing files",
				zap.String("job_id", jobID), zap.Error(err))
			f.removeFilesLocked(jobID)
		}
	}
	return nil
}

// loadJobLocked loads one job's triple into memory. A missing companion
// file makes the whole triple invalid: the remaining files are removed
// and the index is reported absent.
func (f *Flat) loadJobLocked(jobID string) error {
	vp, mp, ip := f.vectorsPath(jobID), f.metadataPath(jobID), f.idMapPath(jobID)
	for _, p := range []string{vp, mp, ip} {
		if _, err := os.Stat(p); err != nil {
			f.logger.Warn("incomplete index file triple",
				zap.String("job_id", jobID), zap.String("missing", filepath.Base(p)))
			f.removeFilesLocked(jobID)
			return fmt.Errorf("%w: job %s", rag.ErrIndexNotFound, jobID)
		}
	}

	dimension, vectors, err := readVectors(vp)
	if err != nil {
		return fmt.Errorf("read vectors: %w", err)
	}

	metaRaw, err := os.ReadFile(mp)
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	metadata := make(map[string]rag.Chunk)
	if err := json.Unmarshal(metaRaw, &metadata); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	idRaw, err := os.ReadFile(ip)
	if err != nil {
		return fmt.Errorf("read id map: %w", err)
	}
	var idMap []string
	if err := json.Unmarshal(idRaw, &idMap); err != nil {
		return fmt.Errorf("decode id map: %w", err)
	}

	f.jobs[jobID] = &jobIndex{
		dimension: dimension,
		vectors:   vectors,
		metadata:  metadata,
		idMap:     idMap,
	}
	f.logger.Info("loaded vector index",
		zap.String("job_id", jobID), zap.Int("vectors", len(vectors)))
	return nil
}

func (f *Flat) removeFilesLocked(jobID string) {
	for _, p := range []string{f.vectorsPath(jobID), f.metadataPath(jobID), f.idMapPath(jobID)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("failed to remove index file", zap.String("path", p), zap.Error(err))
		}
	}
	delete(f.jobs, jobID)
}

// saveLocked persists one job's triple. Each file is written to a temp
// path and renamed into place so a crash never leaves a torn file.
func (f *Flat) saveLocked(jobID string) error {
	ji := f.jobs[jobID]
	if ji == nil {
		return fmt.Errorf("%w: job %s", rag.ErrIndexNotFound, jobID)
	}

	if err := writeVectors(f.vectorsPath(jobID), ji.dimension, ji.vectors); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}

	metaRaw, err := json.Marshal(ji.metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeAtomic(f.metadataPath(jobID), metaRaw); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	idRaw, err := json.Marshal(ji.idMap)
	if err != nil {
		return fmt.Errorf("encode id map: %w", err)
	}
	if err := writeAtomic(f.idMapPath(jobID), idRaw); err != nil {
		return fmt.Errorf("write id map: %w", err)
	}
	return nil
}

// AddChunks appends chunks to the job's index, creating it on first use,
// and persists the file triple. All embeddings in one call must share
// the index's dimension.
func (f *Flat) AddChunks(ctx context.Context, jobID string, chunks []rag.Chunk) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	dim := len(chunks[0].Embedding)
	if dim == 0 {
		return 0, fmt.Errorf("%w: chunk %s has no embedding", rag.ErrDimensionMismatch, chunks[0].ChunkID)
	}
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return 0, fmt.Errorf("%w: chunk %s has dimension %d, batch has %d",
				rag.ErrDimensionMismatch, c.ChunkID, len(c.Embedding), dim)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ji := f.jobs[jobID]
	if ji == nil {
		ji = &jobIndex{
			dimension: dim,
			metadata:  make(map[string]rag.Chunk),
		}
		f.jobs[jobID] = ji
		f.logger.Info("created vector index",
			zap.String("job_id", jobID), zap.Int("dimension", dim))
	} else if ji.dimension != dim {
		return 0, fmt.Errorf("%w: index has dimension %d, batch has %d",
			rag.ErrDimensionMismatch, ji.dimension, dim)
	}

	added := 0
	for start := 0; start < len(chunks); start += f.batchSize {
		end := start + f.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		for _, c := range chunks[start:end] {
			ji.vectors = append(ji.vectors, c.Embedding)
			ji.metadata[c.ChunkID] = c
			ji.idMap = append(ji.idMap, c.ChunkID)
		}
		added += end - start
		f.logger.Debug("indexed batch",
			zap.String("job_id", jobID), zap.Int("batch", end-start), zap.Int("total", added))
	}

	if err := f.saveLocked(jobID); err != nil {
		return 0, err
	}
	metrics.ObserveChunksIndexed(added)
	f.logger.Info("saved vector index",
		zap.String("job_id", jobID), zap.Int("added", added), zap.Int("total", len(ji.vectors)))
	return added, nil
}

// Search returns the k nearest chunks to query by squared L2 distance,
// ascending. An index absent from memory is reloaded from disk once; if
// the triple is missing or incomplete the search reports
// rag.ErrIndexNotFound. Ordinals that cannot be resolved through the id
// map are skipped.
func (f *Flat) Search(ctx context.Context, jobID string, query []float32, k int) ([]rag.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() { metrics.ObserveSearch(time.Since(start)) }()

	f.mu.Lock()
	ji := f.jobs[jobID]
	if ji == nil {
		if err := f.loadJobLocked(jobID); err != nil {
			f.mu.Unlock()
			return nil, err
		}
		ji = f.jobs[jobID]
	}
	f.mu.Unlock()

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(query) != ji.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d",
			rag.ErrDimensionMismatch, len(query), ji.dimension)
	}

	type hit struct {
		distance float32
		ordinal  int
	}
	hits := make([]hit, 0, len(ji.vectors))
	for i, vec := range ji.vectors {
		hits = append(hits, hit{distance: l2Squared(query, vec), ordinal: i})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].distance != hits[b].distance {
			return hits[a].distance < hits[b].distance
		}
		return hits[a].ordinal < hits[b].ordinal
	})

	results := make([]rag.ScoredChunk, 0, k)
	for _, h := range hits {
		if len(results) == k {
			break
		}
		if h.ordinal >= len(ji.idMap) {
			f.logger.Warn("ordinal out of id map bounds",
				zap.String("job_id", jobID), zap.Int("ordinal", h.ordinal))
			continue
		}
		chunk, ok := ji.metadata[ji.idMap[h.ordinal]]
		if !ok {
			f.logger.Warn("chunk metadata missing",
				zap.String("job_id", jobID), zap.String("chunk_id", ji.idMap[h.ordinal]))
			continue
		}
		results = append(results, rag.ScoredChunk{Distance: h.distance, Chunk: chunk})
	}
	return results, nil
}

// Count returns the number of vectors indexed for a job, zero when the
// index does not exist.
func (f *Flat) Count(jobID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if ji := f.jobs[jobID]; ji != nil {
		return len(ji.vectors)
	}
	return 0
}

func l2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
