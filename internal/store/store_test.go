package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/mockinterview/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestInterview(t *testing.T, s *Store, userID string) (*model.Interview, *model.Session) {
	t.Helper()
	ctx := context.Background()
	iv := &model.Interview{
		UserID:        userID,
		Role:          "Backend Engineer",
		InterviewType: "technical",
		Difficulty:    model.DifficultyMedium,
		Duration:      30,
		Status:        model.InterviewInProgress,
	}
	if err := s.CreateInterview(ctx, iv); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}
	sess := &model.Session{InterviewID: iv.ID, UserID: userID, Status: model.SessionActive}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return iv, sess
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.UserCount(ctx)
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	u, err := s.CreateUser(ctx, model.User{Username: "ada", DisplayName: "Ada", PasswordHash: "hash", Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected generated ID")
	}
	if u.Role != model.UserRoleCandidate {
		t.Errorf("default role = %s, want candidate", u.Role)
	}

	got, err := s.GetUserByUsername(ctx, "ada")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.ID != u.ID || got.DisplayName != "Ada" || !got.Active {
		t.Errorf("got %+v", got)
	}

	byID, err := s.GetUserByID(ctx, u.ID)
	if err != nil || byID.Username != "ada" {
		t.Fatalf("GetUserByID = %+v, %v", byID, err)
	}

	if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.CreateUser(ctx, model.User{Username: "ada", PasswordHash: "x"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("expected 1 user, got %d", len(users))
	}
}

func TestInterviewRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	iv, _ := createTestInterview(t, s, "u1")

	got, err := s.FindInterview(ctx, iv.ID)
	if err != nil {
		t.Fatalf("FindInterview: %v", err)
	}
	if got.Role != "Backend Engineer" || got.Status != model.InterviewInProgress {
		t.Errorf("got %+v", got)
	}

	now := time.Now().UTC()
	got.Status = model.InterviewCompleted
	got.CompletedAt = &now
	got.OverallScore = 77
	got.Certificate = &model.Certificate{CertificateID: "CERT-1-ABC", VerificationCode: "CODE12345678", Grade: model.GradeC}
	if err := s.SaveInterview(ctx, got); err != nil {
		t.Fatalf("SaveInterview: %v", err)
	}

	reloaded, err := s.FindInterview(ctx, iv.ID)
	if err != nil {
		t.Fatalf("FindInterview: %v", err)
	}
	if reloaded.OverallScore != 77 || reloaded.Certificate == nil || reloaded.Certificate.Grade != model.GradeC {
		t.Errorf("reloaded %+v", reloaded)
	}

	byCode, err := s.FindCertificate(ctx, "code12345678")
	if err != nil {
		t.Fatalf("FindCertificate: %v", err)
	}
	if byCode.ID != iv.ID {
		t.Errorf("FindCertificate returned %s", byCode.ID)
	}

	if _, err := s.FindInterview(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.SaveInterview(ctx, &model.Interview{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionVersioning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	iv, sess := createTestInterview(t, s, "u1")

	if sess.Version != 1 {
		t.Fatalf("new session version = %d, want 1", sess.Version)
	}

	a, err := s.FindSession(ctx, iv.ID, "u1")
	if err != nil {
		t.Fatalf("FindSession: %v", err)
	}
	b, err := s.FindSessionByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("FindSessionByID: %v", err)
	}

	a.QuestionEvaluations = append(a.QuestionEvaluations, model.QuestionEvaluation{QuestionNumber: 1, Question: "q", Score: 7, Feedback: "f"})
	if err := s.SaveSession(ctx, a); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if a.Version != 2 {
		t.Errorf("version after save = %d, want 2", a.Version)
	}

	// b is stale now.
	b.Status = model.SessionAbandoned
	if err := s.SaveSession(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, err := s.FindSessionByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("FindSessionByID: %v", err)
	}
	if got.Version != 2 || len(got.QuestionEvaluations) != 1 || got.Status != model.SessionActive {
		t.Errorf("got version=%d evals=%d status=%s", got.Version, len(got.QuestionEvaluations), got.Status)
	}

	if err := s.SaveSession(ctx, &model.Session{ID: "missing", Version: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindSession(ctx, iv.ID, "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOneSessionPerUserAndInterview(t *testing.T) {
	s := newTestStore(t)
	iv, _ := createTestInterview(t, s, "u1")
	dup := &model.Session{InterviewID: iv.ID, UserID: "u1", Status: model.SessionActive}
	if err := s.CreateSession(context.Background(), dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestListSessionsAndUnreconciled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, active := createTestInterview(t, s, "u1")
	_, done := createTestInterview(t, s, "u2")
	iv3, synced := createTestInterview(t, s, "u3")

	for _, sess := range []*model.Session{done, synced} {
		sess.Status = model.SessionCompleted
		if err := s.SaveSession(ctx, sess); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}
	iv3.Status = model.InterviewCompleted
	if err := s.SaveInterview(ctx, iv3); err != nil {
		t.Fatalf("SaveInterview: %v", err)
	}

	all, err := s.ListSessions(ctx, "")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListSessions(all) = %d, want 3", len(all))
	}

	activeOnly, err := s.ListSessions(ctx, model.SessionActive)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(activeOnly) != 1 || activeOnly[0].ID != active.ID {
		t.Errorf("ListSessions(active) = %+v", activeOnly)
	}

	pending, err := s.ListUnreconciled(ctx)
	if err != nil {
		t.Fatalf("ListUnreconciled: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != done.ID {
		t.Errorf("ListUnreconciled = %+v, want only %s", pending, done.ID)
	}
}

func TestExportCompleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, model.User{Username: "ada", DisplayName: "Ada", PasswordHash: "h", Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	iv, sess := createTestInterview(t, s, u.ID)
	createTestInterview(t, s, "other")

	sess.QuestionEvaluations = []model.QuestionEvaluation{
		{QuestionNumber: 1, Question: "What is a goroutine?", UserAnswer: "thread", Score: 8, Feedback: "good",
			Category: model.CategoryTechnical, EvaluatedBy: model.SourceOracle},
	}
	sess.Status = model.SessionCompleted
	sess.OverallScore = 62
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	iv.Status = model.InterviewCompleted
	iv.Certificate = &model.Certificate{CertificateID: "CERT-1-X", VerificationCode: "V1", Grade: model.GradeD}
	if err := s.SaveInterview(ctx, iv); err != nil {
		t.Fatalf("SaveInterview: %v", err)
	}

	results, err := s.ExportCompleted(ctx)
	if err != nil {
		t.Fatalf("ExportCompleted: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Username != "ada" || r.OverallScore != 62 || r.Grade != model.GradeD || r.CertificateID != "CERT-1-X" {
		t.Errorf("result = %+v", r)
	}
	if len(r.Questions) != 1 || r.Questions[0].EvaluatedBy != model.SourceOracle {
		t.Errorf("questions = %+v", r.Questions)
	}
}
