package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"multimodal-rag-platform/internal/logger"
	"multimodal-rag-platform/models"
)

// TextEmbedder is the embedding surface the chunker and vector store need.
// *ai.GeminiClient satisfies it; tests plug in deterministic fakes.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// SemanticChunker regroups extracted prose at embedding-similarity
// breakpoints. Consecutive text chunks from the same source page are merged
// into one run, the run is split into sentences, and a new boundary is placed
// wherever the embedding distance between neighboring sentences exceeds a
// percentile threshold over all such distances in the run. The threshold is a
// pure function of the pairwise distances, so identical input and embeddings
// always produce identical boundaries.
type SemanticChunker struct {
	embedder             TextEmbedder
	breakpointPercentile float64
	sentenceRegex        *regexp.Regexp
}

// NewSemanticChunker builds a chunker with the given breakpoint percentile
// (0 < p <= 100). Higher percentiles split less aggressively.
func NewSemanticChunker(embedder TextEmbedder, breakpointPercentile float64) *SemanticChunker {
	return &SemanticChunker{
		embedder:             embedder,
		breakpointPercentile: breakpointPercentile,
		sentenceRegex:        regexp.MustCompile(`[.!?]+[\s]+`),
	}
}

// ChunkBatch transforms one ingestion batch. Table, picture and digest chunks
// pass through untouched and in order; only text chunks are regrouped.
// Embedding failures abort the whole batch since partial re-chunking would
// silently change retrieval granularity.
func (sc *SemanticChunker) ChunkBatch(ctx context.Context, chunks []models.Chunk) ([]models.Chunk, error) {
	var out []models.Chunk
	var run []models.Chunk

	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		rechunked, err := sc.rechunkRun(ctx, run)
		if err != nil {
			return err
		}
		out = append(out, rechunked...)
		run = nil
		return nil
	}

	for _, c := range chunks {
		if c.ElementKind != models.ElementText {
			if err := flush(); err != nil {
				return nil, err
			}
			out = append(out, c)
			continue
		}
		if len(run) > 0 && (run[0].Source != c.Source || run[0].Page != c.Page) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		run = append(run, c)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return out, nil
}

func (sc *SemanticChunker) rechunkRun(ctx context.Context, run []models.Chunk) ([]models.Chunk, error) {
	parts := make([]string, len(run))
	for i, c := range run {
		parts[i] = c.Content
	}
	sentences := sc.splitSentences(strings.Join(parts, " "))

	if len(sentences) <= 1 {
		return run, nil
	}

	vectors := make([][]float32, len(sentences))
	for i, s := range sentences {
		vec, err := sc.embedder.EmbedText(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("failed to embed sentence %d of %s: %w", i+1, run[0].Source, err)
		}
		vectors[i] = vec
	}

	distances := make([]float64, len(sentences)-1)
	for i := range distances {
		distances[i] = 1 - cosineSimilarity(vectors[i], vectors[i+1])
	}
	threshold := percentile(distances, sc.breakpointPercentile)

	var out []models.Chunk
	start := 0
	emit := func(end int) {
		out = append(out, models.Chunk{
			Content:     strings.Join(sentences[start:end], " "),
			Source:      run[0].Source,
			ElementKind: models.ElementText,
			Page:        run[0].Page,
		})
		start = end
	}
	for i, d := range distances {
		if d > threshold {
			emit(i + 1)
		}
	}
	emit(len(sentences))

	logger.Debug("semantic rechunk",
		"source", run[0].Source,
		"sentences", len(sentences),
		"in", len(run),
		"out", len(out))

	return out, nil
}

// splitSentences cuts text at terminal punctuation followed by whitespace.
// Trailing text without terminal punctuation becomes a final sentence.
func (sc *SemanticChunker) splitSentences(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range sc.sentenceRegex.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// percentile computes the p-th percentile of values with linear
// interpolation between the two nearest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// cosineSimilarity over float32 vectors, as stored in the index. Mismatched
// or zero-length vectors score 0 so a bad record ranks last instead of
// breaking a search.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
