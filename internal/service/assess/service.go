// Package assess turns the four collected answers into a structured risk
// verdict by prompting the LLM once and parsing its reply. Unlike the
// relevance validator, a failure here is surfaced: silently guessing a risk
// level would be worse than a visible, retryable error.
package assess

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/mwarrick/payguard/backend/internal/model/chat"
)

// ErrAssessmentFailed means the provider call failed or its reply carried no
// recognizable risk level. The caller keeps the collected answers and may
// retry without data loss.
var ErrAssessmentFailed = errors.New("risk assessment failed")

// Service runs the fixed fraud-analysis prompt over a chat model.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the assessment chain. chatModel may be nil (provider
// not configured); Assess then always reports ErrAssessmentFailed.
func NewService(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	svc := &Service{}
	if chatModel == nil {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(assessmentSystemPrompt),
		schema.UserMessage(assessmentUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile assessment chain: %w", err)
	}

	svc.chain = runnable
	return svc, nil
}

// Enabled reports whether the provider is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.chain != nil
}

// Assess produces a verdict for the four answers, in questionnaire order.
func (s *Service) Assess(ctx context.Context, answers []chat.Answer) (chat.RiskVerdict, error) {
	if !s.Enabled() {
		return chat.RiskVerdict{}, fmt.Errorf("%w: assessment provider not configured", ErrAssessmentFailed)
	}

	input := map[string]any{
		"recipient": answerByID(answers, "payment_recipient"),
		"purpose":   answerByID(answers, "payment_purpose"),
		"source":    answerByID(answers, "instruction_source"),
		"platform":  answerByID(answers, "payment_platform"),
	}

	msg, err := s.chain.Invoke(ctx, input)
	if err != nil {
		log.Printf("[assess] invoke failed, retrying once: %v", err)
		msg, err = s.chain.Invoke(ctx, input)
	}
	if err != nil {
		return chat.RiskVerdict{}, fmt.Errorf("%w: %v", ErrAssessmentFailed, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return chat.RiskVerdict{}, fmt.Errorf("%w: empty provider response", ErrAssessmentFailed)
	}

	verdict, err := parseAssessment(msg.Content)
	if err != nil {
		return chat.RiskVerdict{}, fmt.Errorf("%w: %v", ErrAssessmentFailed, err)
	}

	log.Printf("[assess] verdict level=%s bullets=%d", verdict.Level, len(verdict.Rationale))
	return verdict, nil
}

func answerByID(answers []chat.Answer, id string) string {
	for _, a := range answers {
		if a.QuestionID == id {
			return a.Text
		}
	}
	return "Not provided"
}

var (
	levelPattern    = regexp.MustCompile(`(?i)RISK\s*LEVEL\s*[:\-]?\s*\[?\s*(LOW|MEDIUM|HIGH)`)
	fallbackPattern = regexp.MustCompile(`\b(LOW|MEDIUM|HIGH)\b`)
	bulletPattern   = regexp.MustCompile(`^\s*(?:[-•*]|\d+[.)])\s+`)
)

// parseAssessment extracts the level token and rationale bullets from the
// model reply. The model is instructed to use a fixed format, but providers
// drift, so parsing tolerates markdown decoration and prose bullets.
func parseAssessment(content string) (chat.RiskVerdict, error) {
	match := levelPattern.FindStringSubmatch(content)
	if match == nil {
		match = fallbackPattern.FindStringSubmatch(strings.ToUpper(content))
	}
	if match == nil {
		return chat.RiskVerdict{}, fmt.Errorf("no recognizable risk level in response")
	}

	level, ok := chat.ParseRiskLevel(match[1])
	if !ok {
		return chat.RiskVerdict{}, fmt.Errorf("unrecognized risk level token %q", match[1])
	}

	bullets := extractBullets(content)
	if len(bullets) == 0 {
		return chat.RiskVerdict{}, fmt.Errorf("no rationale found in response")
	}
	if len(bullets) > 4 {
		bullets = bullets[:4]
	}

	return chat.RiskVerdict{Level: level, Rationale: bullets}, nil
}

func extractBullets(content string) []string {
	var bullets []string
	for _, line := range strings.Split(content, "\n") {
		if !bulletPattern.MatchString(line) {
			continue
		}
		text := strings.TrimSpace(bulletPattern.ReplaceAllString(line, ""))
		text = strings.Trim(text, "* ")
		if text == "" || levelPattern.MatchString(text) {
			continue
		}
		bullets = append(bullets, text)
	}
	if len(bullets) > 0 {
		return bullets
	}

	// No bullet markers: fall back to the analysis prose, one sentence per
	// bullet.
	analysis := content
	if idx := strings.Index(strings.ToUpper(content), "ANALYSIS:"); idx != -1 {
		analysis = content[idx+len("ANALYSIS:"):]
	} else if match := levelPattern.FindStringIndex(content); match != nil {
		analysis = content[match[1]:]
	}
	for _, sentence := range strings.Split(analysis, ". ") {
		sentence = strings.TrimSpace(strings.Trim(sentence, ".*\n "))
		if sentence == "" {
			continue
		}
		bullets = append(bullets, sentence)
		if len(bullets) == 4 {
			break
		}
	}
	return bullets
}

const assessmentSystemPrompt = "You are a fraud detection expert helping a bank customer judge whether a payment they are about to make is safe.\n" +
	"Classify the payment risk as LOW, MEDIUM, or HIGH.\n" +
	"Canonical red flags: urgency pressure, an unfamiliar or unverified recipient, an unsolicited payment link (especially via text message or social media), a shortened or mismatched URL, and a platform that does not fit the stated purpose.\n" +
	"LOW: known recipient, plausible purpose, instructions from a trusted first-party channel, recognizable platform.\n" +
	"MEDIUM: one notable red flag or unverifiable details.\n" +
	"HIGH: multiple red flags or any classic scam pattern.\n" +
	"Keep the whole reply under 150 words and respond in exactly this format:\n" +
	"RISK LEVEL: LOW or MEDIUM or HIGH\n" +
	"ANALYSIS:\n" +
	"- between two and four short bullets naming the concrete risk factors or positive indicators"

const assessmentUserPrompt = "Payment details collected from the customer:\n" +
	"- Recipient: {recipient}\n" +
	"- Purpose: {purpose}\n" +
	"- Source of payment link or instructions: {source}\n" +
	"- Website or platform used to pay: {platform}\n\n" +
	"Provide the risk assessment."
