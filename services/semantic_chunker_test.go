package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"multimodal-rag-platform/models"
)

type fakeEmbedder struct {
	calls int
	fail  bool
}

// Two orthogonal topic vectors: feline sentences on one axis, everything
// else on the other. Distances within a topic are 0, across topics 1.
func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedder down")
	}
	if strings.Contains(strings.ToLower(text), "cat") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func TestChunkBatchSplitsAtTopicShift(t *testing.T) {
	sc := NewSemanticChunker(&fakeEmbedder{}, 50)

	in := []models.Chunk{{
		Content:     "Cats purr often. Cats nap all day. Stocks fell sharply.",
		Source:      "pets.txt",
		ElementKind: models.ElementText,
		Page:        1,
	}}

	out, err := sc.ChunkBatch(context.Background(), in)
	if err != nil {
		t.Fatalf("ChunkBatch() error: %v", err)
	}

	if len(out) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(out), out)
	}
	if out[0].Content != "Cats purr often. Cats nap all day." {
		t.Errorf("chunk 0 = %q", out[0].Content)
	}
	if out[1].Content != "Stocks fell sharply." {
		t.Errorf("chunk 1 = %q", out[1].Content)
	}
	for i, c := range out {
		if c.Source != "pets.txt" || c.Page != 1 || c.ElementKind != models.ElementText {
			t.Errorf("chunk %d lost provenance: %+v", i, c)
		}
	}
}

func TestChunkBatchMergesUniformRun(t *testing.T) {
	sc := NewSemanticChunker(&fakeEmbedder{}, 95)

	in := []models.Chunk{
		{Content: "Cats sleep a lot.", Source: "pets.txt", ElementKind: models.ElementText, Page: 2},
		{Content: "Cats also groom.", Source: "pets.txt", ElementKind: models.ElementText, Page: 2},
	}

	out, err := sc.ChunkBatch(context.Background(), in)
	if err != nil {
		t.Fatalf("ChunkBatch() error: %v", err)
	}

	if len(out) != 1 {
		t.Fatalf("got %d chunks, want 1 merged: %+v", len(out), out)
	}
	if out[0].Content != "Cats sleep a lot. Cats also groom." {
		t.Errorf("merged content = %q", out[0].Content)
	}
}

func TestChunkBatchPassesThroughNonText(t *testing.T) {
	emb := &fakeEmbedder{}
	sc := NewSemanticChunker(emb, 95)

	in := []models.Chunk{
		{Content: "| a |\n| --- |", Source: "t.csv", ElementKind: models.ElementTable, LocalPath: "/tmp/t-table-1.csv", Metadata: map[string]interface{}{"sheet": "S1"}},
		{Content: "[IMAGE: t_picture_1.png]", Source: "t.pdf", ElementKind: models.ElementPicture, LocalPath: "/tmp/t_picture_1.png"},
		{Content: "whole document", Source: "t.txt", ElementKind: models.ElementFullDocument},
	}

	out, err := sc.ChunkBatch(context.Background(), in)
	if err != nil {
		t.Fatalf("ChunkBatch() error: %v", err)
	}

	if !reflect.DeepEqual(out, in) {
		t.Errorf("non-text chunks modified:\n got %+v\nwant %+v", out, in)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times for non-text batch", emb.calls)
	}
}

func TestChunkBatchSingleSentenceSkipsEmbedding(t *testing.T) {
	emb := &fakeEmbedder{}
	sc := NewSemanticChunker(emb, 95)

	in := []models.Chunk{{Content: "Just one sentence.", Source: "a.txt", ElementKind: models.ElementText}}
	out, err := sc.ChunkBatch(context.Background(), in)
	if err != nil {
		t.Fatalf("ChunkBatch() error: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("single-sentence chunk changed: %+v", out)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times, want 0", emb.calls)
	}
}

func TestChunkBatchDeterministic(t *testing.T) {
	in := []models.Chunk{{
		Content:     "Cats purr. Stocks fell. Cats nap. Bonds rose.",
		Source:      "mix.txt",
		ElementKind: models.ElementText,
	}}

	first, err := NewSemanticChunker(&fakeEmbedder{}, 50).ChunkBatch(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewSemanticChunker(&fakeEmbedder{}, 50).ChunkBatch(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("boundaries not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestChunkBatchEmbeddingFailure(t *testing.T) {
	sc := NewSemanticChunker(&fakeEmbedder{fail: true}, 95)
	in := []models.Chunk{{Content: "One. Two.", Source: "a.txt", ElementKind: models.ElementText}}
	if _, err := sc.ChunkBatch(context.Background(), in); err == nil {
		t.Fatal("expected error when embedder is down")
	}
}

func TestPercentile(t *testing.T) {
	vals := []float64{0, 1}
	if got := percentile(vals, 50); got != 0.5 {
		t.Errorf("p50 = %v, want 0.5", got)
	}
	if got := percentile(vals, 100); got != 1 {
		t.Errorf("p100 = %v, want 1", got)
	}
	if got := percentile([]float64{3}, 95); got != 3 {
		t.Errorf("single value p95 = %v, want 3", got)
	}
	if got := percentile(nil, 95); got != 0 {
		t.Errorf("empty p95 = %v, want 0", got)
	}
}
