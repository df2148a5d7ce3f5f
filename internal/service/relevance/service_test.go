package relevance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwarrick/payguard/backend/internal/model/chat"
)

func newLocalOnlyService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), nil, Config{MinAnswerLength: 3})
	require.NoError(t, err)
	require.False(t, svc.Enabled())
	return svc
}

func testQuestion() chat.Question {
	q, _ := chat.QuestionAt(0)
	return q
}

func TestValidateRejectsEmptyLocally(t *testing.T) {
	svc := newLocalOnlyService(t)

	for _, answer := range []string{"", "   ", "\n\t "} {
		res := svc.Validate(context.Background(), testQuestion(), answer)
		assert.False(t, res.Accepted, "answer %q must be rejected", answer)
		assert.Contains(t, res.Reprompt, "who you are paying")
		assert.NotEqual(t, testQuestion().Prompt, res.Reprompt, "reprompt must paraphrase, not repeat")
	}
}

func TestValidateRejectsTooShortLocally(t *testing.T) {
	svc := newLocalOnlyService(t)

	for _, answer := range []string{"ab", "asdf", "no"} {
		res := svc.Validate(context.Background(), testQuestion(), answer)
		assert.False(t, res.Accepted, "answer %q must be rejected", answer)
	}
}

func TestValidateAcceptsSubstantiveAnswersWithoutClassifier(t *testing.T) {
	svc := newLocalOnlyService(t)

	for _, answer := range []string{"John Smith", "Amazon", "a bit.ly link from a text message"} {
		res := svc.Validate(context.Background(), testQuestion(), answer)
		assert.True(t, res.Accepted, "answer %q must be accepted", answer)
	}
}

func TestTooShort(t *testing.T) {
	cases := []struct {
		answer string
		want   bool
	}{
		{"ab", true},        // below the minimum
		{"asdf", true},      // single short word
		{"PayPal", false},   // single recognizable word
		{"my mum", false},   // two words
		{"bit.ly/x", false}, // single token but long enough
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tooShort(tc.answer, 3), "tooShort(%q)", tc.answer)
	}
}

func TestParseClassifierOutput(t *testing.T) {
	payload, err := parseClassifierOutput(`{"relevant": true, "reason": "names a person"}`)
	require.NoError(t, err)
	assert.True(t, payload.Relevant)
	assert.Equal(t, "names a person", payload.Reason)
}

func TestParseClassifierOutputWithSurroundingProse(t *testing.T) {
	content := "Sure! Here is my judgment:\n```json\n{\"relevant\": false, \"reason\": \"off-topic\"}\n```\nHope that helps."
	payload, err := parseClassifierOutput(content)
	require.NoError(t, err)
	assert.False(t, payload.Relevant)
	assert.Equal(t, "off-topic", payload.Reason)
}

func TestParseClassifierOutputMissingJSON(t *testing.T) {
	_, err := parseClassifierOutput("true")
	require.Error(t, err)
}
