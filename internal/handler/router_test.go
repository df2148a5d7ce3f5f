package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	model "github.com/mwarrick/payguard/backend/internal/model/chat"
	"github.com/mwarrick/payguard/backend/internal/service/relevance"
	chatService "github.com/mwarrick/payguard/backend/internal/service/chat"
)

type noopJudge struct{}

func (noopJudge) Validate(ctx context.Context, question model.Question, answer string) relevance.Result {
	return relevance.Result{Accepted: true}
}

type noopAssessor struct{}

func (noopAssessor) Assess(ctx context.Context, answers []model.Answer) (model.RiskVerdict, error) {
	return model.RiskVerdict{Level: model.RiskLow, Rationale: []string{"nothing unusual"}}, nil
}

func TestHealthEndpoint(t *testing.T) {
	store := chatService.NewMemoryStore(time.Minute)
	engine := chatService.NewEngine(store, noopJudge{}, noopAssessor{}, chatService.Options{})
	router := NewRouter(engine)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("unexpected health payload: %v", body)
	}
}

func TestAPIRoutesMounted(t *testing.T) {
	store := chatService.NewMemoryStore(time.Minute)
	engine := chatService.NewEngine(store, noopJudge{}, noopAssessor{}, chatService.Options{})
	router := NewRouter(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/start", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// An empty body still decodes (EOF) as invalid JSON; the route itself
	// must exist rather than 404.
	if rec.Code == http.StatusNotFound {
		t.Fatalf("expected /api/chat/start to be mounted, got 404")
	}
}
