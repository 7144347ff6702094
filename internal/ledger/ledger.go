// Package ledger implements the append-only list of per-question evaluations
// carried by an interview session.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pavelanni/mockinterview/internal/model"
)

// ErrSessionClosed is returned when appending to a session that is no longer active.
var ErrSessionClosed = errors.New("session is not active")

// ValidationError reports a field-level problem with an evaluation or request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NextNumber returns the question number the next appended evaluation receives.
func NextNumber(s *model.Session) int {
	return len(s.QuestionEvaluations) + 1
}

// Append validates ev, assigns its question number and appends it to the end of
// the session's ledger. It is the only mutator of the ledger.
//
// A QuestionNumber > 0 on ev is kept; otherwise the next position is assigned.
// Unknown categories become general and unknown difficulties become medium.
func Append(s *model.Session, ev model.QuestionEvaluation) (model.QuestionEvaluation, error) {
	if s.Status != model.SessionActive {
		return model.QuestionEvaluation{}, ErrSessionClosed
	}
	if strings.TrimSpace(ev.Question) == "" {
		return model.QuestionEvaluation{}, &ValidationError{Field: "question", Message: "is required"}
	}
	if math.IsNaN(ev.Score) || math.IsInf(ev.Score, 0) || ev.Score < 0 || ev.Score > 10 {
		return model.QuestionEvaluation{}, &ValidationError{Field: "score", Message: fmt.Sprintf("%v is outside [0,10]", ev.Score)}
	}
	if strings.TrimSpace(ev.Feedback) == "" {
		return model.QuestionEvaluation{}, &ValidationError{Field: "feedback", Message: "is required"}
	}
	if ev.TimeSpent < 0 {
		return model.QuestionEvaluation{}, &ValidationError{Field: "timeSpent", Message: "must not be negative"}
	}

	if !ev.Category.Valid() {
		ev.Category = model.CategoryGeneral
	}
	if !ev.Difficulty.Valid() {
		ev.Difficulty = model.DifficultyMedium
	}
	if ev.QuestionNumber <= 0 {
		ev.QuestionNumber = NextNumber(s)
	}
	if ev.EvaluatedAt.IsZero() {
		ev.EvaluatedAt = time.Now().UTC()
	}
	// Copy slices so later edits by the caller cannot reach into the ledger.
	ev.Strengths = compact(ev.Strengths)
	ev.Improvements = compact(ev.Improvements)

	s.QuestionEvaluations = append(s.QuestionEvaluations, ev)
	return ev, nil
}

// AppendTurn adds a conversation turn at the end of the session transcript.
func AppendTurn(s *model.Session, role model.Role, content, kind string, at time.Time) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.Conversation = append(s.Conversation, model.Turn{
		Role:      role,
		Content:   content,
		Type:      kind,
		Timestamp: at,
	})
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
