package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavelanni/mockinterview/internal/model"
)

// ExportCompleted builds export-ready results for every completed interview.
func (s *Store) ExportCompleted(ctx context.Context) ([]model.CandidateResult, error) {
	interviews, err := s.ListInterviews(ctx, model.InterviewCompleted)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}

	var results []model.CandidateResult
	for i := range interviews {
		iv := &interviews[i]
		sess, err := s.FindSession(ctx, iv.ID, iv.UserID)
		if err != nil {
			return nil, fmt.Errorf("get session for interview %s: %w", iv.ID, err)
		}
		user, err := s.GetUserByID(ctx, iv.UserID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("get user %s: %w", iv.UserID, err)
		}
		results = append(results, BuildCandidateResult(iv, sess, user))
	}
	return results, nil
}

// BuildCandidateResult flattens one completed interview for export. user may be nil.
func BuildCandidateResult(iv *model.Interview, sess *model.Session, user *model.User) model.CandidateResult {
	var username, displayName string
	if user != nil {
		username = user.Username
		displayName = user.DisplayName
	}

	questions := make([]model.QuestionResult, 0, len(sess.QuestionEvaluations))
	for _, ev := range sess.QuestionEvaluations {
		questions = append(questions, model.QuestionResult{
			Number:      ev.QuestionNumber,
			Question:    ev.Question,
			Answer:      ev.UserAnswer,
			Category:    ev.Category,
			Score:       ev.Score,
			Feedback:    ev.Feedback,
			EvaluatedBy: ev.EvaluatedBy,
		})
	}

	r := model.CandidateResult{
		InterviewID:   iv.ID,
		SessionID:     sess.ID,
		Username:      username,
		DisplayName:   displayName,
		Role:          iv.Role,
		InterviewType: iv.InterviewType,
		Difficulty:    iv.Difficulty,
		StartedAt:     sess.StartedAt,
		CompletedAt:   sess.CompletedAt,
		OverallScore:  sess.OverallScore,
		Technical:     sess.TechnicalScore,
		Communication: sess.CommunicationScore,
		Problem:       sess.ProblemSolvingScore,
		Questions:     questions,
	}
	if iv.Certificate != nil {
		r.Grade = iv.Certificate.Grade
		r.CertificateID = iv.Certificate.CertificateID
	}
	return r
}
