// Package relevance decides whether a user's answer actually addresses the
// current questionnaire question. Cheap local checks run first; everything
// else is delegated to an LLM classifier. The classifier is advisory: any
// provider failure degrades to accepting the answer so an AI outage never
// strands a user mid-conversation.
package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/mwarrick/payguard/backend/internal/model/chat"
)

// Config controls the validator's local heuristics.
type Config struct {
	// MinAnswerLength is the minimum rune count before an answer is even
	// worth sending to the classifier.
	MinAnswerLength int
}

// Result is the validator's accept/reject decision. On reject, Reprompt
// carries the paraphrased follow-up to show the user.
type Result struct {
	Accepted bool
	Reprompt string
	Reason   string
}

// Service validates answers with a local-first, classifier-second policy.
type Service struct {
	classifier compose.Runnable[map[string]any, *schema.Message]
	minLength  int
}

// NewService builds the validator. chatModel may be nil, in which case only
// the local heuristics run and every substantive answer is accepted.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	minLength := cfg.MinAnswerLength
	if minLength <= 0 {
		minLength = 3
	}

	svc := &Service{minLength: minLength}
	if chatModel == nil {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(relevanceSystemPrompt),
		schema.UserMessage(relevanceUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile relevance classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled reports whether the LLM classifier is available.
func (s *Service) Enabled() bool {
	return s != nil && s.classifier != nil
}

// Validate judges one answer against its question. It never returns an
// error: classifier failures are absorbed into an accept decision.
func (s *Service) Validate(ctx context.Context, question chat.Question, answer string) Result {
	trimmed := strings.TrimSpace(answer)

	if trimmed == "" {
		return s.reject(question, "empty answer")
	}
	if tooShort(trimmed, s.minLength) {
		return s.reject(question, "answer too short to be meaningful")
	}

	if !s.Enabled() {
		return Result{Accepted: true}
	}

	verdict, err := s.classify(ctx, question, trimmed)
	if err != nil {
		// Availability over precision: a broken classifier must not block
		// the conversation forever.
		log.Printf("[relevance] classifier unavailable, accepting answer for %s: %v", question.ID, err)
		return Result{Accepted: true}
	}

	if verdict.Relevant {
		return Result{Accepted: true}
	}
	return s.reject(question, strings.TrimSpace(verdict.Reason))
}

func (s *Service) classify(ctx context.Context, question chat.Question, answer string) (*classifierPayload, error) {
	input := map[string]any{
		"question_label": question.ID,
		"question":       question.Prompt,
		"answer":         answer,
	}

	msg, err := s.classifier.Invoke(ctx, input)
	if err != nil {
		// One immediate retry covers transient provider hiccups.
		log.Printf("[relevance] classifier invoke failed, retrying once: %v", err)
		msg, err = s.classifier.Invoke(ctx, input)
	}
	if err != nil {
		return nil, err
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("empty classifier response")
	}

	return parseClassifierOutput(msg.Content)
}

func (s *Service) reject(question chat.Question, reason string) Result {
	reprompt := fmt.Sprintf("I need a more specific answer about %s. Could you please provide more details?", question.Topic)
	if reason != "" {
		log.Printf("[relevance] rejected answer for %s: %s", question.ID, reason)
	}
	return Result{Accepted: false, Reprompt: reprompt, Reason: reason}
}

// tooShort flags answers with no chance of carrying meaning: below the
// configured minimum, or a lone short word where a description is expected.
func tooShort(trimmed string, minLength int) bool {
	if utf8.RuneCountInString(trimmed) < minLength {
		return true
	}
	words := strings.Fields(trimmed)
	return len(words) == 1 && utf8.RuneCountInString(words[0]) < 5
}

// parseClassifierOutput extracts the JSON object from the model reply,
// tolerating any prose around it.
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object in classifier output")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

type classifierPayload struct {
	Relevant bool   `json:"relevant"`
	Reason   string `json:"reason"`
}

const relevanceSystemPrompt = "You evaluate whether a user's reply is relevant to a fraud-prevention question about a payment they are making.\n" +
	"Treat as RELEVANT: specific names, organizations, or entities for recipient questions; clear descriptions of services, products, or purposes for purpose questions; concrete sources such as an email, text message, website link, or social media post for instruction-source questions; URLs or descriptions of websites and platforms for platform questions.\n" +
	"Treat as NOT relevant: generic replies such as yes, no, maybe, I don't know; single words without context; off-topic replies; replies that ask a question back instead of answering.\n" +
	"Respond with only a JSON object with fields: relevant (boolean) and reason (one short sentence)."

const relevanceUserPrompt = "Question context: {question_label}\nQuestion: {question}\nUser reply: {answer}\n\nReturn the JSON object."
