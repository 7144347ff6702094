// Package interview is the service layer of the mock-interview backend. It
// ties the evaluation oracle, the ledger, the score aggregator, the
// certificate generator and the emotion summarizer to a document store, and
// serializes every session mutation.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pavelanni/mockinterview/internal/certificate"
	"github.com/pavelanni/mockinterview/internal/emotion"
	"github.com/pavelanni/mockinterview/internal/i18n"
	"github.com/pavelanni/mockinterview/internal/ledger"
	"github.com/pavelanni/mockinterview/internal/llm"
	"github.com/pavelanni/mockinterview/internal/lock"
	"github.com/pavelanni/mockinterview/internal/metrics"
	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/scoring"
	"github.com/pavelanni/mockinterview/internal/store"
)

const (
	// maxSaveAttempts bounds optimistic-concurrency retries of a session save.
	maxSaveAttempts = 3
	// maxInterviewAttempts bounds retries of the interview mirror write at completion.
	maxInterviewAttempts = 3
	// completionTimeout bounds one shared completion run.
	completionTimeout = 30 * time.Second

	defaultInterviewType = "technical"
	defaultDuration      = 30
)

// Repository is the document store the service runs on. Both the SQLite
// store and the MongoDB store satisfy it.
type Repository interface {
	CreateInterview(ctx context.Context, iv *model.Interview) error
	FindInterview(ctx context.Context, id string) (*model.Interview, error)
	SaveInterview(ctx context.Context, iv *model.Interview) error
	FindCertificate(ctx context.Context, code string) (*model.Interview, error)

	CreateSession(ctx context.Context, sess *model.Session) error
	FindSession(ctx context.Context, interviewID, userID string) (*model.Session, error)
	FindSessionByID(ctx context.Context, id string) (*model.Session, error)
	SaveSession(ctx context.Context, sess *model.Session) error
	ListUnreconciled(ctx context.Context) ([]model.Session, error)

	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Config wires a Service. Repo and Oracle are required; the rest default.
type Config struct {
	Repo         Repository
	Oracle       *llm.Adapter
	Locker       lock.Locker
	Certificates *certificate.Generator
	Catalog      *i18n.Catalog
	Metrics      *metrics.Metrics
	Now          func() time.Time
	// RetryDelay is the base backoff between interview save attempts.
	RetryDelay time.Duration
}

// Service implements the interview operations.
type Service struct {
	repo       Repository
	oracle     *llm.Adapter
	locker     lock.Locker
	certs      *certificate.Generator
	catalog    *i18n.Catalog
	metrics    *metrics.Metrics
	now        func() time.Time
	retryDelay time.Duration

	completions singleflight.Group
}

// New creates a Service.
func New(cfg Config) *Service {
	s := &Service{
		repo:       cfg.Repo,
		oracle:     cfg.Oracle,
		locker:     cfg.Locker,
		certs:      cfg.Certificates,
		catalog:    cfg.Catalog,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
		retryDelay: cfg.RetryDelay,
	}
	if s.oracle == nil {
		s.oracle = llm.NewAdapter(nil, 0)
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.certs == nil {
		s.certs = certificate.New()
	}
	if s.catalog == nil {
		s.catalog = i18n.MustNew("en")
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.retryDelay <= 0 {
		s.retryDelay = 100 * time.Millisecond
	}
	return s
}

// CreateInput describes a new interview.
type CreateInput struct {
	Role          string
	InterviewType string
	Difficulty    model.Difficulty
	Duration      int
	ResumeText    string
}

// CreateInterview creates an in-progress interview and its active session.
func (s *Service) CreateInterview(ctx context.Context, userID string, in CreateInput) (*model.Interview, *model.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, invalid("userId", "is required")
	}
	if strings.TrimSpace(in.Role) == "" {
		return nil, nil, invalid("role", "is required")
	}
	if in.Difficulty == "" {
		in.Difficulty = model.DifficultyMedium
	}
	if !in.Difficulty.Valid() {
		return nil, nil, invalid("difficulty", fmt.Sprintf("unknown difficulty %q", in.Difficulty))
	}
	if in.Duration < 0 {
		return nil, nil, invalid("duration", "must not be negative")
	}
	if in.Duration == 0 {
		in.Duration = defaultDuration
	}
	if strings.TrimSpace(in.InterviewType) == "" {
		in.InterviewType = defaultInterviewType
	}

	now := s.now().UTC()
	sess := &model.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    model.SessionActive,
		StartedAt: now,
	}
	iv := &model.Interview{
		UserID:        userID,
		Role:          strings.TrimSpace(in.Role),
		InterviewType: in.InterviewType,
		Difficulty:    in.Difficulty,
		Duration:      in.Duration,
		ResumeText:    in.ResumeText,
		Status:        model.InterviewInProgress,
		SessionID:     sess.ID,
		CreatedAt:     now,
	}
	if err := s.repo.CreateInterview(ctx, iv); err != nil {
		return nil, nil, &PersistenceError{Op: "create interview", Err: err}
	}
	sess.InterviewID = iv.ID
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, nil, &PersistenceError{Op: "create session", Err: err}
	}
	slog.Info("interview created", "interview_id", iv.ID, "session_id", sess.ID, "user_id", userID)
	return iv, sess, nil
}

// GetInterview returns an interview owned by userID together with its
// session. Interviews of other users are reported as not found.
func (s *Service) GetInterview(ctx context.Context, interviewID, userID string) (*model.Interview, *model.Session, error) {
	iv, err := s.repo.FindInterview(ctx, interviewID)
	if err != nil {
		return nil, nil, err
	}
	if iv.UserID != userID {
		return nil, nil, ErrNotFound
	}
	sess, err := s.repo.FindSession(ctx, interviewID, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}
	return iv, sess, nil
}

// AnswerInput is one candidate answer to be scored.
type AnswerInput struct {
	SessionID      string
	Question       string
	Answer         string
	Code           string
	Category       model.Category
	QuestionNumber int
	TimeSpent      float64
}

// AnswerResult carries the raw oracle result and the ledger entry made from it.
type AnswerResult struct {
	Evaluation         llm.Result               `json:"evaluation"`
	QuestionEvaluation model.QuestionEvaluation `json:"questionEvaluation"`
}

// SubmitAnswer evaluates an answer and appends it to the session ledger. The
// oracle runs before the session lock is taken; the append itself is
// serialized and retried on version conflicts.
func (s *Service) SubmitAnswer(ctx context.Context, in AnswerInput) (*AnswerResult, error) {
	switch {
	case strings.TrimSpace(in.SessionID) == "":
		return nil, invalid("sessionId", "is required")
	case strings.TrimSpace(in.Question) == "":
		return nil, invalid("question", "is required")
	case strings.TrimSpace(in.Answer) == "":
		return nil, invalid("answer", "is required")
	case in.TimeSpent < 0:
		return nil, invalid("timeSpent", "must not be negative")
	}

	sess, err := s.repo.FindSessionByID(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionActive {
		return nil, ErrSessionClosed
	}

	difficulty := model.DifficultyMedium
	evalContext := ""
	if iv, err := s.repo.FindInterview(ctx, sess.InterviewID); err == nil {
		difficulty = iv.Difficulty
		evalContext = fmt.Sprintf("%s interview, %s difficulty", iv.Role, iv.Difficulty)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	out := s.oracle.Evaluate(ctx, llm.Request{
		Question: in.Question,
		Answer:   in.Answer,
		Context:  evalContext,
		Code:     in.Code,
	})
	if out.Degraded() {
		out.Result = localizeFallback(out.Result, in.Answer, s.catalog.FromContext(ctx))
	}

	var appended model.QuestionEvaluation
	err = s.withLock(ctx, in.SessionID, func() error {
		_, err := s.update(ctx, in.SessionID, func(sess *model.Session) (bool, error) {
			now := s.now().UTC()
			ev, err := ledger.Append(sess, model.QuestionEvaluation{
				QuestionNumber: in.QuestionNumber,
				Question:       in.Question,
				UserAnswer:     in.Answer,
				Score:          out.Result.Score,
				Feedback:       out.Result.Review,
				Category:       in.Category,
				Difficulty:     difficulty,
				Strengths:      []string{out.Result.Strength},
				Improvements:   []string{out.Result.Improvement},
				CodeSubmitted:  in.Code,
				TimeSpent:      in.TimeSpent,
				EvaluatedBy:    out.Source,
				EvaluatedAt:    now,
			})
			if err != nil {
				return false, err
			}
			appended = ev
			ledger.AppendTurn(sess, model.RoleUser, in.Answer, "answer", now)
			ledger.AppendTurn(sess, model.RoleAssistant, out.Result.Review, "evaluation", now)
			return true, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("answer evaluated",
		"session_id", in.SessionID, "question_number", appended.QuestionNumber,
		"score", appended.Score, "source", out.Source)
	return &AnswerResult{Evaluation: out.Result, QuestionEvaluation: appended}, nil
}

// localizeFallback swaps the fallback's reference text for the request language.
func localizeFallback(r llm.Result, answer string, tr *i18n.Localizer) llm.Result {
	if strings.TrimSpace(answer) == "" {
		r.Review = tr.T("FallbackBlankReview")
		r.Improvement = tr.T("FallbackBlankImprovement")
		return r
	}
	r.Review = tr.T("FallbackReview")
	r.Strength = tr.T("FallbackStrength")
	r.Improvement = tr.T("FallbackImprovement")
	return r
}

// CompletionResult is the combined payload returned on completion.
type CompletionResult struct {
	Session     *model.Session     `json:"session"`
	Feedback    *model.Feedback    `json:"feedback"`
	Certificate *model.Certificate `json:"certificate"`
}

// CompleteInterview finalizes the session of userID for interviewID: it
// aggregates the ledger, issues a certificate, saves the session and then
// mirrors the result onto the interview. Completing an already completed
// session returns the stored result and repairs the interview if needed.
// Concurrent calls for the same session share one execution.
func (s *Service) CompleteInterview(ctx context.Context, interviewID, userID string) (*CompletionResult, error) {
	if strings.TrimSpace(interviewID) == "" {
		return nil, invalid("interviewId", "is required")
	}
	// The shared run is detached from whichever caller started it; each caller
	// only stops waiting when its own ctx is done.
	ch := s.completions.DoChan(interviewID+"/"+userID, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionTimeout)
		defer cancel()
		return s.complete(cctx, interviewID, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*CompletionResult), nil
	}
}

func (s *Service) complete(ctx context.Context, interviewID, userID string) (*CompletionResult, error) {
	sess, err := s.repo.FindSession(ctx, interviewID, userID)
	if err != nil {
		return nil, err
	}
	iv, err := s.repo.FindInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	tr := s.catalog.FromContext(ctx)

	var res *CompletionResult
	err = s.withLock(ctx, sess.ID, func() error {
		already := false
		saved, err := s.update(ctx, sess.ID, func(cur *model.Session) (bool, error) {
			switch cur.Status {
			case model.SessionCompleted:
				already = true
				return false, nil
			case model.SessionActive:
			default:
				return false, ErrSessionClosed
			}
			return true, s.finalize(ctx, cur, iv, tr)
		})
		if err != nil {
			return err
		}

		if already {
			s.metrics.Completion(metrics.CompletionIdempotent)
			if iv.Status != model.InterviewCompleted {
				slog.Info("repairing interview of completed session", "interview_id", iv.ID, "session_id", saved.ID)
				if err := s.mirror(ctx, iv, saved); err != nil {
					return err
				}
				s.metrics.Reconciled(1)
			}
		} else {
			if err := s.mirror(ctx, iv, saved); err != nil {
				s.metrics.Completion(metrics.CompletionFailed)
				return err
			}
			s.metrics.Completion(metrics.CompletionCompleted)
			slog.Info("interview completed",
				"interview_id", iv.ID, "session_id", saved.ID,
				"overall_score", saved.OverallScore, "certificate_id", saved.Certificate.CertificateID)
		}
		res = &CompletionResult{Session: saved, Feedback: saved.Feedback, Certificate: saved.Certificate}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// finalize writes scores, feedback, stats and the certificate onto an active
// session and marks it completed. An emotional analysis generated earlier is kept.
func (s *Service) finalize(ctx context.Context, sess *model.Session, iv *model.Interview, tr *i18n.Localizer) error {
	report := scoring.Aggregate(sess.QuestionEvaluations, tr)
	fb := report.Feedback
	if sess.Feedback != nil {
		fb.EmotionalAnalysis = sess.Feedback.EmotionalAnalysis
	}

	if sess.Certificate == nil {
		cert, err := s.certs.Issue(certificate.Input{
			Score:         report.Scores.Overall,
			UserName:      s.userName(ctx, sess.UserID),
			Domain:        iv.Role,
			InterviewType: iv.InterviewType,
		})
		if err != nil {
			return fmt.Errorf("issue certificate: %w", err)
		}
		sess.Certificate = cert
	}

	now := s.now().UTC()
	sess.Status = model.SessionCompleted
	sess.OverallScore = report.Scores.Overall
	sess.TechnicalScore = report.Scores.Technical
	sess.CommunicationScore = report.Scores.Communication
	sess.ProblemSolvingScore = report.Scores.ProblemSolving
	sess.Feedback = &fb
	sess.Stats = scoring.ComputeStats(sess.QuestionEvaluations)
	sess.CompletedAt = &now
	return nil
}

func (s *Service) userName(ctx context.Context, userID string) string {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("failed to load user for certificate", "user_id", userID, "error", err)
		}
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// mirror copies the completed session onto its interview, retrying with a
// linear backoff. A final failure leaves the pair for reconciliation.
func (s *Service) mirror(ctx context.Context, iv *model.Interview, sess *model.Session) error {
	iv.Status = model.InterviewCompleted
	iv.CompletedAt = sess.CompletedAt
	iv.SessionID = sess.ID
	iv.OverallScore = sess.OverallScore
	iv.TechnicalScore = sess.TechnicalScore
	iv.CommunicationScore = sess.CommunicationScore
	iv.ProblemSolvingScore = sess.ProblemSolvingScore
	iv.Certificate = sess.Certificate
	if sess.Feedback != nil {
		iv.Feedback = sess.Feedback.Summary
		iv.Strengths = sess.Feedback.Strengths
		iv.Improvements = sess.Feedback.Improvements
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = s.repo.SaveInterview(ctx, iv); err == nil {
			return nil
		}
		if attempt == maxInterviewAttempts || errors.Is(err, ErrNotFound) {
			break
		}
		slog.Warn("interview save failed, retrying", "interview_id", iv.ID, "attempt", attempt, "error", err)
		if werr := sleep(ctx, time.Duration(attempt)*s.retryDelay); werr != nil {
			err = werr
			break
		}
	}

	s.metrics.ReconcileRequired()
	slog.Error("reconciliation required: session completed but interview not updated",
		"interview_id", iv.ID, "session_id", sess.ID, "error", err)
	return &PersistenceError{Op: "save interview", Err: err}
}

// Reconcile repairs every completed session whose interview is not marked
// completed. It returns the number of interviews repaired.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	pending, err := s.repo.ListUnreconciled(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unreconciled: %w", err)
	}

	var errs []error
	repaired := 0
	for i := range pending {
		sess := &pending[i]
		err := s.withLock(ctx, sess.ID, func() error {
			iv, err := s.repo.FindInterview(ctx, sess.InterviewID)
			if err != nil {
				return err
			}
			if iv.Status == model.InterviewCompleted {
				return nil
			}
			if err := s.mirror(ctx, iv, sess); err != nil {
				return err
			}
			repaired++
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.ID, err))
		}
	}
	s.metrics.Reconciled(repaired)
	if repaired > 0 || len(errs) > 0 {
		slog.Info("reconciliation pass finished", "repaired", repaired, "failed", len(errs))
	}
	return repaired, errors.Join(errs...)
}

// VerifyResult is the public view of a certificate lookup.
type VerifyResult struct {
	Certificate *model.Certificate `json:"certificate"`
	Valid       bool               `json:"valid"`
}

// VerifyCertificate looks up a certificate by verification code.
func (s *Service) VerifyCertificate(ctx context.Context, code string) (*VerifyResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid("code", "is required")
	}
	iv, err := s.repo.FindCertificate(ctx, code)
	if err != nil {
		return nil, err
	}
	if iv.Certificate == nil {
		return nil, ErrNotFound
	}
	return &VerifyResult{
		Certificate: iv.Certificate,
		Valid:       certificate.IsValid(iv.Certificate, s.now()),
	}, nil
}

// RecordEmotion appends one emotion/confidence reading to the session of
// userID for interviewID and returns the resulting series lengths.
func (s *Service) RecordEmotion(ctx context.Context, interviewID, userID string, sample emotion.Sample) (emotionCount, confidenceCount int, err error) {
	if len(sample.Emotions) == 0 {
		return 0, 0, invalid("emotions", "is required")
	}
	sess, err := s.repo.FindSession(ctx, interviewID, userID)
	if err != nil {
		return 0, 0, err
	}
	var saved *model.Session
	err = s.withLock(ctx, sess.ID, func() error {
		saved, err = s.update(ctx, sess.ID, func(cur *model.Session) (bool, error) {
			if err := emotion.RecordSample(&cur.Metrics, sample); err != nil {
				return false, invalid("emotions", err.Error())
			}
			return true, nil
		})
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	s.metrics.EmotionSample()
	return len(saved.Metrics.EmotionTimeline), len(saved.Metrics.Confidence), nil
}

// EmotionSummary returns statistics over the session's emotion series.
func (s *Service) EmotionSummary(ctx context.Context, interviewID, userID string) (emotion.Summary, error) {
	sess, err := s.repo.FindSession(ctx, interviewID, userID)
	if err != nil {
		return emotion.Summary{}, err
	}
	return emotion.Summarize(sess.Metrics), nil
}

// EmotionFeedback generates the emotional analysis and stores it on the
// session feedback, replacing any previous one.
func (s *Service) EmotionFeedback(ctx context.Context, interviewID, userID string) (*model.EmotionalAnalysis, error) {
	sess, err := s.repo.FindSession(ctx, interviewID, userID)
	if err != nil {
		return nil, err
	}
	tr := s.catalog.FromContext(ctx)

	var analysis model.EmotionalAnalysis
	err = s.withLock(ctx, sess.ID, func() error {
		_, err := s.update(ctx, sess.ID, func(cur *model.Session) (bool, error) {
			analysis = emotion.GenerateFeedback(cur.Metrics, tr, s.now().UTC())
			if cur.Feedback == nil {
				cur.Feedback = &model.Feedback{}
			}
			a := analysis
			cur.Feedback.EmotionalAnalysis = &a
			return true, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) withLock(ctx context.Context, sessionID string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, lock.SessionKey(sessionID))
	if err != nil {
		return fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	defer unlock()
	return fn()
}

// update loads the session, applies fn and saves it with a version check,
// reloading and reapplying fn on conflict. When fn reports no change the
// loaded session is returned without a write.
func (s *Service) update(ctx context.Context, sessionID string, fn func(*model.Session) (bool, error)) (*model.Session, error) {
	for attempt := 1; ; attempt++ {
		sess, err := s.repo.FindSessionByID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		changed, err := fn(sess)
		if err != nil {
			return nil, err
		}
		if !changed {
			return sess, nil
		}

		err = s.repo.SaveSession(ctx, sess)
		switch {
		case err == nil:
			return sess, nil
		case errors.Is(err, store.ErrVersionConflict) && attempt < maxSaveAttempts:
			s.metrics.VersionConflict()
			slog.Debug("session version conflict, retrying", "session_id", sessionID, "attempt", attempt)
		case errors.Is(err, ErrNotFound):
			return nil, err
		default:
			return nil, &PersistenceError{Op: "save session", Err: err}
		}
	}
}
