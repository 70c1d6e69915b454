package ai

import (
	"context"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
)

// EmbedText returns the embedding vector for the given text using the
// configured Google embeddings model. Vectors are deterministic for identical
// input, and every vector from one model shares the same dimensionality.
func (gc *GeminiClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.EmbeddingModel(gc.cfg.GoogleEmbeddingsModel)
		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return nil, fmt.Errorf("no embedding returned")
		}
		return resp.Embedding.Values, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	return result.([]float32), nil
}

// EmbedImage captions the image with the vision model and embeds the caption,
// so image records live in the same vector space as text and a plain text
// query retrieves both modalities. Returns the caption alongside the vector
// so it can be stored for display.
func (gc *GeminiClient) EmbedImage(ctx context.Context, path string) (string, []float32, error) {
	caption, err := gc.CaptionImage(ctx, path)
	if err != nil {
		return "", nil, err
	}

	vec, err := gc.EmbedText(ctx, caption)
	if err != nil {
		return "", nil, err
	}

	return caption, vec, nil
}
