package chat

import "time"

// State tags the single lifecycle phase a session is in.
type State string

const (
	// StateAwaitingAnswer covers the AwaitingQuestion(1..4) phases; the
	// concrete question is Session.Index.
	StateAwaitingAnswer State = "awaiting_answer"
	StateAssessing      State = "assessing"
	StateCompleted      State = "completed"
)

// Answer pairs a question's semantic label with the accepted response text.
type Answer struct {
	QuestionID string
	Text       string
}

// Session captures one transient questionnaire run. Sessions are owned by
// the store; other components operate on copies and commit mutations back.
type Session struct {
	ID           string
	Index        int // 0-based current question, 0..QuestionCount
	Answers      []Answer
	RetryCount   int // failed attempts for the current question
	SkippedCount int // questions advanced past via the retry-cap fallback
	State        State
	Verdict      *RiskVerdict
	CreatedAt    time.Time
	LastActivity time.Time
}

// Completed reports whether the session reached its terminal verdict.
func (s *Session) Completed() bool {
	return s.State == StateCompleted
}

// AwaitingFinalAssessment reports whether all answers are collected but no
// verdict exists yet, i.e. a prior assessment attempt failed and the next
// submission should retry it rather than answer a question.
func (s *Session) AwaitingFinalAssessment() bool {
	return s.State == StateAwaitingAnswer && len(s.Answers) == QuestionCount
}
