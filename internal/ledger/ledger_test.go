package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pavelanni/mockinterview/internal/model"
)

func activeSession() *model.Session {
	return &model.Session{ID: "s1", Status: model.SessionActive}
}

func eval(cat model.Category, score float64) model.QuestionEvaluation {
	return model.QuestionEvaluation{Question: "q", UserAnswer: "a", Score: score, Feedback: "fb", Category: cat}
}

func TestAppendAssignsNumbersInOrder(t *testing.T) {
	s := activeSession()
	cats := []model.Category{model.CategoryCoding, model.CategoryTechnical, model.CategoryBehavioral}
	for _, c := range cats {
		if _, err := Append(s, eval(c, 5)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	for i, ev := range s.QuestionEvaluations {
		if ev.QuestionNumber != i+1 {
			t.Errorf("entry %d has questionNumber %d", i, ev.QuestionNumber)
		}
		if ev.Category != cats[i] {
			t.Errorf("entry %d category = %s, want %s", i, ev.Category, cats[i])
		}
	}
}

func TestAppendKeepsSuppliedNumber(t *testing.T) {
	s := activeSession()
	ev := eval(model.CategoryTechnical, 5)
	ev.QuestionNumber = 4
	got, err := Append(s, ev)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got.QuestionNumber != 4 {
		t.Errorf("questionNumber = %d, want 4", got.QuestionNumber)
	}
}

func TestAppendNormalizes(t *testing.T) {
	s := activeSession()
	ev := eval("architecture", 5)
	ev.Difficulty = "extreme"
	ev.Strengths = []string{" clear ", ""}
	got, err := Append(s, ev)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got.Category != model.CategoryGeneral {
		t.Errorf("category = %s, want general", got.Category)
	}
	if got.Difficulty != model.DifficultyMedium {
		t.Errorf("difficulty = %s, want medium", got.Difficulty)
	}
	if len(got.Strengths) != 1 || got.Strengths[0] != "clear" {
		t.Errorf("strengths = %q", got.Strengths)
	}
	if got.EvaluatedAt.IsZero() {
		t.Error("evaluatedAt should be set")
	}
}

func TestAppendValidation(t *testing.T) {
	tests := []struct {
		name  string
		ev    model.QuestionEvaluation
		field string
	}{
		{"negative score", eval(model.CategoryTechnical, -1), "score"},
		{"score above ten", eval(model.CategoryTechnical, 10.5), "score"},
		{"nan score", eval(model.CategoryTechnical, math.NaN()), "score"},
		{"missing question", model.QuestionEvaluation{Score: 5, Feedback: "fb"}, "question"},
		{"missing feedback", model.QuestionEvaluation{Question: "q", Score: 5}, "feedback"},
		{"negative time", model.QuestionEvaluation{Question: "q", Score: 5, Feedback: "fb", TimeSpent: -3}, "timeSpent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := activeSession()
			_, err := Append(s, tt.ev)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %s, want %s", ve.Field, tt.field)
			}
			if len(s.QuestionEvaluations) != 0 {
				t.Error("rejected evaluation must not be appended")
			}
		})
	}
}

func TestAppendBoundaryScores(t *testing.T) {
	s := activeSession()
	for _, score := range []float64{0, 10} {
		if _, err := Append(s, eval(model.CategoryTechnical, score)); err != nil {
			t.Errorf("score %v rejected: %v", score, err)
		}
	}
}

func TestAppendClosedSession(t *testing.T) {
	for _, st := range []model.SessionStatus{model.SessionCompleted, model.SessionAbandoned} {
		s := &model.Session{Status: st}
		if _, err := Append(s, eval(model.CategoryTechnical, 5)); !errors.Is(err, ErrSessionClosed) {
			t.Errorf("status %s: err = %v, want ErrSessionClosed", st, err)
		}
	}
}

func TestAppendTurn(t *testing.T) {
	s := activeSession()
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	AppendTurn(s, model.RoleAssistant, "What is a goroutine?", "question", t0)
	AppendTurn(s, model.RoleUser, "A lightweight thread", "answer", time.Time{})

	if len(s.Conversation) != 2 {
		t.Fatalf("conversation length = %d", len(s.Conversation))
	}
	if s.Conversation[0].Role != model.RoleAssistant || !s.Conversation[0].Timestamp.Equal(t0) {
		t.Errorf("first turn = %+v", s.Conversation[0])
	}
	if s.Conversation[1].Timestamp.IsZero() {
		t.Error("zero timestamp should default to now")
	}
}
