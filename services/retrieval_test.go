package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"multimodal-rag-platform/models"
)

type fakeSearcher struct {
	textHits  []models.SearchResult
	imageHits []models.SearchResult
	calls     []string
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ models.Tenant, contentType string, k int) ([]models.SearchResult, error) {
	f.calls = append(f.calls, contentType)
	if k != retrievalK {
		return nil, errors.New("unexpected k")
	}
	if contentType == models.ContentTypeImage {
		return f.imageHits, nil
	}
	return f.textHits, nil
}

type fakeGenerator struct {
	prompt string
	images []string
}

func (f *fakeGenerator) GenerateAnswer(_ context.Context, prompt string, imagePaths []string) (string, error) {
	f.prompt = prompt
	f.images = imagePaths
	return "Blue, per the diagram.", nil
}

func textHit(content, source string, page int) models.SearchResult {
	return models.SearchResult{Chunk: models.VectorChunk{
		Content: content, Source: source, ElementKind: models.ElementText, Page: page,
		ContentType: models.ContentTypeText,
	}}
}

func TestAskComposesPromptAndSources(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "diagram_picture_1.png")
	writeFile(t, imgPath, "png-bytes")

	searcher := &fakeSearcher{
		textHits: []models.SearchResult{
			textHit("The housing is blue.", "manual.pdf", 3),
			textHit("Torque to 12 Nm.", "manual.pdf", 4),
		},
		imageHits: []models.SearchResult{
			{Chunk: models.VectorChunk{ContentType: models.ContentTypeImage, URI: imgPath, Caption: "a blue housing"}},
		},
	}
	gen := &fakeGenerator{}
	rs := NewRetrievalService(searcher, gen, nil, 0)

	answer, err := rs.Ask(context.Background(), "What color is the housing?",
		models.Tenant{UserID: "u1", ChatbotID: "b1"}, true)
	if err != nil {
		t.Fatalf("Ask() error: %v", err)
	}

	if answer.Result != "Blue, per the diagram." {
		t.Errorf("result = %q", answer.Result)
	}

	for _, want := range []string{
		"You are a visual AI assistant",
		"ANALYZE THESE IMAGES CAREFULLY:",
		"The housing is blue.\n\nTorque to 12 Nm.",
		"QUESTION:\nWhat color is the housing?",
	} {
		if !strings.Contains(gen.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, gen.prompt)
		}
	}

	if len(gen.images) != 1 || gen.images[0] != imgPath {
		t.Errorf("generator got images %v", gen.images)
	}
	if len(answer.Sources.Text) != 2 {
		t.Fatalf("text sources = %+v", answer.Sources.Text)
	}
	if answer.Sources.Text[0].Metadata["source"] != "manual.pdf" ||
		answer.Sources.Text[0].Metadata["page"] != "3" {
		t.Errorf("source metadata = %v", answer.Sources.Text[0].Metadata)
	}
	if len(answer.Sources.Images) != 1 || answer.Sources.Images[0] != imgPath {
		t.Errorf("image sources = %v", answer.Sources.Images)
	}
}

func TestAskWithoutImages(t *testing.T) {
	searcher := &fakeSearcher{textHits: []models.SearchResult{textHit("Fact.", "a.txt", 0)}}
	gen := &fakeGenerator{}
	rs := NewRetrievalService(searcher, gen, nil, 0)

	answer, err := rs.Ask(context.Background(), "q", models.Tenant{UserID: "u", ChatbotID: "b"}, false)
	if err != nil {
		t.Fatalf("Ask() error: %v", err)
	}

	for _, ct := range searcher.calls {
		if ct == models.ContentTypeImage {
			t.Error("image search ran with include_images=false")
		}
	}
	if strings.Contains(gen.prompt, "ANALYZE THESE IMAGES") {
		t.Error("image instruction present without images")
	}
	if len(gen.images) != 0 {
		t.Errorf("generator got images %v", gen.images)
	}
	if len(answer.Sources.Images) != 0 {
		t.Errorf("image sources = %v", answer.Sources.Images)
	}
}

func TestAskSkipsMissingImageFiles(t *testing.T) {
	searcher := &fakeSearcher{
		imageHits: []models.SearchResult{
			{Chunk: models.VectorChunk{ContentType: models.ContentTypeImage, URI: filepath.Join(t.TempDir(), "gone.png")}},
		},
	}
	gen := &fakeGenerator{}
	rs := NewRetrievalService(searcher, gen, nil, 0)

	answer, err := rs.Ask(context.Background(), "q", models.Tenant{UserID: "u", ChatbotID: "b"}, true)
	if err != nil {
		t.Fatalf("Ask() error: %v", err)
	}
	if len(gen.images) != 0 || len(answer.Sources.Images) != 0 {
		t.Errorf("missing image leaked through: %v / %v", gen.images, answer.Sources.Images)
	}
	if strings.Contains(gen.prompt, "ANALYZE THESE IMAGES") {
		t.Error("image instruction present when every image was skipped")
	}
}

func TestAnswerCacheKeyScoping(t *testing.T) {
	base := answerCacheKey("q", models.Tenant{UserID: "u1", ChatbotID: "b1"}, true)
	for name, other := range map[string]string{
		"different user":    answerCacheKey("q", models.Tenant{UserID: "u2", ChatbotID: "b1"}, true),
		"different chatbot": answerCacheKey("q", models.Tenant{UserID: "u1", ChatbotID: "b2"}, true),
		"different query":   answerCacheKey("other", models.Tenant{UserID: "u1", ChatbotID: "b1"}, true),
		"no images":         answerCacheKey("q", models.Tenant{UserID: "u1", ChatbotID: "b1"}, false),
	} {
		if other == base {
			t.Errorf("cache key collision: %s", name)
		}
	}
}
