package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	model "github.com/mwarrick/payguard/backend/internal/model/chat"
	"github.com/mwarrick/payguard/backend/internal/service/relevance"
	chatservice "github.com/mwarrick/payguard/backend/internal/service/chat"
)

type acceptAllJudge struct{}

func (acceptAllJudge) Validate(ctx context.Context, question model.Question, answer string) relevance.Result {
	if strings.TrimSpace(answer) == "" {
		return relevance.Result{
			Accepted: false,
			Reprompt: fmt.Sprintf("I need a more specific answer about %s. Could you please provide more details?", question.Topic),
		}
	}
	return relevance.Result{Accepted: true}
}

type fixedAssessor struct{}

func (fixedAssessor) Assess(ctx context.Context, answers []model.Answer) (model.RiskVerdict, error) {
	return model.RiskVerdict{
		Level:     model.RiskHigh,
		Rationale: []string{"Unsolicited payment link", "Recipient cannot be verified"},
	}, nil
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	store := chatservice.NewMemoryStore(time.Minute)
	engine := chatservice.NewEngine(store, acceptAllJudge{}, fixedAssessor{}, chatservice.Options{})

	r := chi.NewRouter()
	New(engine).RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, r chi.Router, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, decoded
}

func TestStartCreatesSession(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doRequest(t, r, http.MethodPost, "/chat/start", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true {
		t.Fatalf("expected success, got %v", body)
	}
	if body["session_id"] == "" || body["session_id"] == nil {
		t.Fatal("expected a session_id")
	}

	first, _ := model.QuestionAt(0)
	if body["message"] != first.Prompt {
		t.Fatalf("expected first question, got %q", body["message"])
	}
}

func TestStartHonorsClientSessionID(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doRequest(t, r, http.MethodPost, "/chat/start", `{"session_id": "widget-123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["session_id"] != "widget-123" {
		t.Fatalf("expected widget-123, got %v", body["session_id"])
	}
}

func TestRespondInvalidJSON(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doRequest(t, r, http.MethodPost, "/chat/respond", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["code"] != "INVALID_JSON" {
		t.Fatalf("expected INVALID_JSON, got %v", body["code"])
	}
}

func TestRespondMissingFields(t *testing.T) {
	r := newTestRouter(t)

	for _, payload := range []string{`{}`, `{"session_id": "x"}`, `{"message": "hello"}`} {
		rec, body := doRequest(t, r, http.MethodPost, "/chat/respond", payload)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("payload %s: expected 400, got %d", payload, rec.Code)
		}
		if body["code"] != "VALIDATION_ERROR" {
			t.Fatalf("payload %s: expected VALIDATION_ERROR, got %v", payload, body["code"])
		}
	}
}

func TestRespondUnknownSession(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doRequest(t, r, http.MethodPost, "/chat/respond", `{"session_id": "missing", "message": "hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body["code"] != "SESSION_NOT_FOUND" {
		t.Fatalf("expected SESSION_NOT_FOUND, got %v", body["code"])
	}
}

func TestStatusUnknownSession(t *testing.T) {
	r := newTestRouter(t)

	rec, body := doRequest(t, r, http.MethodGet, "/chat/status/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body["code"] != "SESSION_NOT_FOUND" {
		t.Fatalf("expected SESSION_NOT_FOUND, got %v", body["code"])
	}
}

func TestFullConversationOverREST(t *testing.T) {
	r := newTestRouter(t)

	_, start := doRequest(t, r, http.MethodPost, "/chat/start", `{}`)
	sessionID, _ := start["session_id"].(string)
	if sessionID == "" {
		t.Fatal("expected a session_id")
	}

	answers := []string{
		"John Smith",
		"repaying a personal loan",
		"a text message from an unknown number",
		"a bit.ly link",
	}

	var last map[string]any
	for i, answer := range answers {
		payload := fmt.Sprintf(`{"session_id": %q, "message": %q}`, sessionID, answer)
		rec, body := doRequest(t, r, http.MethodPost, "/chat/respond", payload)
		if rec.Code != http.StatusOK {
			t.Fatalf("answer %d: expected 200, got %d: %s", i+1, rec.Code, rec.Body.String())
		}
		last = body
	}

	if last["completed"] != true {
		t.Fatalf("expected completed conversation, got %v", last)
	}
	assessment, _ := last["risk_assessment"].(string)
	if !strings.Contains(assessment, "RISK LEVEL: HIGH") {
		t.Fatalf("expected verdict in risk_assessment, got %q", assessment)
	}
	if !strings.Contains(assessment, "Recommendation: STOP") {
		t.Fatalf("verdict must carry the safety recommendation, got %q", assessment)
	}

	rec, status := doRequest(t, r, http.MethodGet, "/chat/status/"+sessionID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	if status["completed"] != true || status["answers_count"] != float64(model.QuestionCount) {
		t.Fatalf("unexpected status: %v", status)
	}

	// A completed session rejects further answers but still returns the
	// verdict so the widget can re-render it.
	payload := fmt.Sprintf(`{"session_id": %q, "message": "one more"}`, sessionID)
	rec, body := doRequest(t, r, http.MethodPost, "/chat/respond", payload)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body["code"] != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE, got %v", body["code"])
	}
	if again, _ := body["risk_assessment"].(string); !strings.Contains(again, "RISK LEVEL") {
		t.Fatalf("expected verdict on completed session, got %v", body)
	}
}

func TestRepromptKeepsQuestionIndex(t *testing.T) {
	r := newTestRouter(t)

	_, start := doRequest(t, r, http.MethodPost, "/chat/start", `{"session_id": "s-reprompt"}`)
	if start["success"] != true {
		t.Fatalf("start failed: %v", start)
	}

	// Whitespace answers fail JSON-level validation only when empty; a
	// blank-but-present message reaches the judge and gets a reprompt.
	rec, body := doRequest(t, r, http.MethodPost, "/chat/respond", `{"session_id": "s-reprompt", "message": "   "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	msg, _ := body["message"].(string)
	if !strings.Contains(msg, "more details") {
		t.Fatalf("expected a reprompt, got %q", msg)
	}

	_, status := doRequest(t, r, http.MethodGet, "/chat/status/s-reprompt", "")
	if status["current_question_index"] != float64(0) {
		t.Fatalf("reprompt must not advance the index: %v", status)
	}
}
