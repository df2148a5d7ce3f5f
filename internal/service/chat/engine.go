// Package chat drives one conversation through the fixed payment-safety
// questionnaire: ask, validate, reprompt or advance, and after the final
// answer hand everything to the risk assessor.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mwarrick/payguard/backend/internal/model/chat"
	"github.com/mwarrick/payguard/backend/internal/service/relevance"
)

var (
	// ErrInvalidState rejects operations that do not fit the session's
	// current lifecycle phase, e.g. answering a completed conversation.
	ErrInvalidState = errors.New("operation not valid in current session state")
	// ErrConflict means the session changed underneath an in-flight
	// transition and the mutation was abandoned.
	ErrConflict = errors.New("session state changed concurrently")
)

// skippedAnswerText is recorded when the retry cap is reached so the
// assessment prompt sees the gap instead of silently missing data.
const skippedAnswerText = "User unable to provide relevant answer after multiple attempts"

const (
	completedMessage = "Thank you! Your payment safety assessment has been completed."
	analysisIntro    = "Thank you for answering all the questions. Let me analyze this information for potential fraud indicators."
	retryMessage     = "I could not complete the risk analysis just now. Your answers are saved - please send any message to try again."
)

// AnswerJudge is the narrow seam to the relevance capability; tests drive
// the engine with a stub.
type AnswerJudge interface {
	Validate(ctx context.Context, question chat.Question, answer string) relevance.Result
}

// RiskAssessor is the narrow seam to the assessment capability.
type RiskAssessor interface {
	Assess(ctx context.Context, answers []chat.Answer) (chat.RiskVerdict, error)
}

// Options tunes the engine.
type Options struct {
	// MaxAttempts caps reprompts per question; on the final failed attempt
	// the question is skipped with a placeholder answer.
	MaxAttempts int
	// CallTimeout bounds each external capability call.
	CallTimeout time.Duration
}

// Engine owns conversation lifecycles. All session state lives in the
// store; the engine itself is stateless and safe for concurrent use.
type Engine struct {
	store       Store
	judge       AnswerJudge
	assessor    RiskAssessor
	maxAttempts int
	callTimeout time.Duration
}

// NewEngine wires the state machine to its store and capabilities.
func NewEngine(store Store, judge AnswerJudge, assessor RiskAssessor, opts Options) *Engine {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 20 * time.Second
	}
	return &Engine{
		store:       store,
		judge:       judge,
		assessor:    assessor,
		maxAttempts: maxAttempts,
		callTimeout: callTimeout,
	}
}

// StartResult is the outcome of creating (or restarting) a session.
type StartResult struct {
	SessionID string
	Message   string
}

// Reply is one engine turn: the next question, a reprompt, or the final
// verdict.
type Reply struct {
	Message        string
	Completed      bool
	RiskAssessment string
}

// Status is a debug snapshot of a session.
type Status struct {
	SessionID    string
	State        chat.State
	CurrentIndex int
	AnswersCount int
	Completed    bool
}

// Start provisions a session and returns the first question. A supplied id
// is honored (the widget generates its own); starting an existing id resets
// the conversation.
func (e *Engine) Start(ctx context.Context, requestedID string) (StartResult, error) {
	id := strings.TrimSpace(requestedID)
	if id == "" {
		id = uuid.NewString()
	}

	question, ok := chat.QuestionAt(0)
	if !ok {
		return StartResult{}, fmt.Errorf("question catalog is empty")
	}

	now := time.Now().UTC()
	session := chat.Session{
		ID:           id,
		State:        chat.StateAwaitingAnswer,
		Answers:      make([]chat.Answer, 0, chat.QuestionCount),
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := e.store.Put(ctx, session); err != nil {
		return StartResult{}, err
	}

	log.Printf("[engine] session %s started", id)
	return StartResult{SessionID: id, Message: question.Prompt}, nil
}

// Respond applies exactly one state transition for the session. External
// capability calls run with the in-flight flag set but without any store
// lock held; the final mutation re-checks the snapshot before committing.
func (e *Engine) Respond(ctx context.Context, sessionID, message string) (Reply, error) {
	session, err := e.store.Acquire(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}
	defer e.store.Release(ctx, sessionID)

	if session.Completed() {
		// The verdict is the only artifact available after completion.
		return Reply{
			Message:        completedMessage,
			Completed:      true,
			RiskAssessment: session.Verdict.Render(),
		}, ErrInvalidState
	}
	if session.State != chat.StateAwaitingAnswer {
		return Reply{}, ErrInvalidState
	}

	if session.AwaitingFinalAssessment() {
		// A previous assessment attempt failed; any submission retries it
		// without re-validating the preserved answers.
		return e.runAssessment(ctx, session)
	}

	question, ok := chat.QuestionAt(session.Index)
	if !ok {
		return Reply{}, fmt.Errorf("%w: no question at index %d", ErrConflict, session.Index)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	result := e.judge.Validate(callCtx, question, message)
	cancel()

	if !result.Accepted {
		attempts := session.RetryCount + 1
		if attempts < e.maxAttempts {
			err := e.commit(ctx, session, func(live *chat.Session) {
				live.RetryCount = attempts
			})
			if err != nil {
				return Reply{}, err
			}
			return Reply{Message: result.Reprompt}, nil
		}
		// Retry cap reached: skip the question with a recorded caveat
		// rather than looping forever.
		log.Printf("[engine] session %s skipping question %s after %d attempts", session.ID, question.ID, attempts)
		return e.acceptAnswer(ctx, session, question, skippedAnswerText, true)
	}

	return e.acceptAnswer(ctx, session, question, strings.TrimSpace(message), false)
}

// Status reports the session's current phase for debugging.
func (e *Engine) Status(ctx context.Context, sessionID string) (Status, error) {
	session, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		SessionID:    session.ID,
		State:        session.State,
		CurrentIndex: session.Index,
		AnswersCount: len(session.Answers),
		Completed:    session.Completed(),
	}, nil
}

// acceptAnswer records the answer, advances the index, and either returns
// the next question or moves into assessment.
func (e *Engine) acceptAnswer(ctx context.Context, session chat.Session, question chat.Question, text string, skipped bool) (Reply, error) {
	answer := chat.Answer{QuestionID: question.ID, Text: text}

	err := e.commit(ctx, session, func(live *chat.Session) {
		live.Answers = append(live.Answers, answer)
		live.Index++
		live.RetryCount = 0
		if skipped {
			live.SkippedCount++
		}
		if live.Index == chat.QuestionCount {
			live.State = chat.StateAssessing
		}
	})
	if err != nil {
		return Reply{}, err
	}

	session.Answers = append(session.Answers, answer)
	session.Index++

	if session.Index < chat.QuestionCount {
		next, ok := chat.QuestionAt(session.Index)
		if !ok {
			return Reply{}, fmt.Errorf("%w: no question at index %d", ErrConflict, session.Index)
		}
		return Reply{Message: next.Prompt}, nil
	}

	session.State = chat.StateAssessing
	return e.runAssessment(ctx, session)
}

// runAssessment calls the assessor and finishes the session, or rolls it
// back to awaiting the (already answered) final question on failure so the
// user can retry without losing data.
func (e *Engine) runAssessment(ctx context.Context, session chat.Session) (Reply, error) {
	if session.State == chat.StateAwaitingAnswer {
		// Retry path: re-enter Assessing before calling out.
		if err := e.commit(ctx, session, func(live *chat.Session) {
			live.State = chat.StateAssessing
		}); err != nil {
			return Reply{}, err
		}
		session.State = chat.StateAssessing
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	verdict, err := e.assessor.Assess(callCtx, session.Answers)
	cancel()

	if err != nil {
		log.Printf("[engine] session %s assessment failed: %v", session.ID, err)
		if commitErr := e.commit(ctx, session, func(live *chat.Session) {
			live.State = chat.StateAwaitingAnswer
		}); commitErr != nil {
			return Reply{}, commitErr
		}
		return Reply{Message: retryMessage}, err
	}

	if err := e.commit(ctx, session, func(live *chat.Session) {
		live.State = chat.StateCompleted
		live.Verdict = &verdict
	}); err != nil {
		return Reply{}, err
	}

	log.Printf("[engine] session %s completed, risk level %s", session.ID, verdict.Level)
	return Reply{
		Message:        analysisIntro,
		Completed:      true,
		RiskAssessment: verdict.Render(),
	}, nil
}

// commit applies a mutation after re-checking that the live session still
// matches the snapshot the transition was computed from. The in-flight gate
// makes conflicts unlikely, but an expiry sweep or restart can still race.
func (e *Engine) commit(ctx context.Context, snapshot chat.Session, mutate func(*chat.Session)) error {
	return e.store.Update(ctx, snapshot.ID, func(live *chat.Session) error {
		if live.State != snapshot.State || live.Index != snapshot.Index || len(live.Answers) != len(snapshot.Answers) {
			return ErrConflict
		}
		mutate(live)
		live.LastActivity = time.Now().UTC()
		return nil
	})
}
