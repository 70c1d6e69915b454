package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"multimodal-rag-platform/models"
	"multimodal-rag-platform/services"
)

type stubSearcher struct {
	lastTenant models.Tenant
}

func (s *stubSearcher) Search(_ context.Context, _ string, tenant models.Tenant, contentType string, _ int) ([]models.SearchResult, error) {
	s.lastTenant = tenant
	if contentType == models.ContentTypeImage {
		return nil, nil
	}
	return []models.SearchResult{
		{Chunk: models.VectorChunk{Content: "fact", Source: "doc.txt", ElementKind: models.ElementText}},
	}, nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateAnswer(_ context.Context, _ string, _ []string) (string, error) {
	return "the answer", nil
}

func newAskRouter(searcher *stubSearcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	retrieval := services.NewRetrievalService(searcher, stubGenerator{}, nil, 0)
	RegisterAskRoutes(router, retrieval)
	return router
}

func TestAskRequiresQueryAndTenant(t *testing.T) {
	router := newAskRouter(&stubSearcher{})

	for name, target := range map[string]string{
		"missing query":      "/ask?user_id=u1&chatbot_id=b1",
		"missing user_id":    "/ask?query=hi&chatbot_id=b1",
		"missing chatbot_id": "/ask?query=hi&user_id=u1",
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestAskReturnsAnswerWithSources(t *testing.T) {
	searcher := &stubSearcher{}
	router := newAskRouter(searcher)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ask?query=hi&user_id=u1&chatbot_id=b1&include_images=false", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var answer models.Answer
	if err := json.Unmarshal(w.Body.Bytes(), &answer); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if answer.Result != "the answer" {
		t.Errorf("result = %q", answer.Result)
	}
	if len(answer.Sources.Text) != 1 || answer.Sources.Text[0].Content != "fact" {
		t.Errorf("sources = %+v", answer.Sources)
	}
	if searcher.lastTenant.UserID != "u1" || searcher.lastTenant.ChatbotID != "b1" {
		t.Errorf("tenant passed to search = %+v", searcher.lastTenant)
	}
}
