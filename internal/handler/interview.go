package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/mockinterview/internal/emotion"
	"github.com/pavelanni/mockinterview/internal/interview"
	"github.com/pavelanni/mockinterview/internal/model"
)

type evaluateAnswerRequest struct {
	SessionID      string         `json:"sessionId"`
	Question       string         `json:"question"`
	Answer         string         `json:"answer"`
	CodeSubmitted  string         `json:"codeSubmitted"`
	Category       model.Category `json:"category"`
	QuestionNumber int            `json:"questionNumber"`
	TimeSpent      float64        `json:"timeSpent"`
}

func (h *Handler) handleEvaluateAnswer(w http.ResponseWriter, r *http.Request) {
	var req evaluateAnswerRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.SubmitAnswer(r.Context(), interview.AnswerInput{
		SessionID:      req.SessionID,
		Question:       req.Question,
		Answer:         req.Answer,
		Code:           req.CodeSubmitted,
		Category:       req.Category,
		QuestionNumber: req.QuestionNumber,
		TimeSpent:      req.TimeSpent,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

type completeInterviewRequest struct {
	InterviewID string `json:"interviewId"`
}

func (h *Handler) handleCompleteInterview(w http.ResponseWriter, r *http.Request) {
	var req completeInterviewRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user := model.UserFromContext(r.Context())
	res, err := h.svc.CompleteInterview(r.Context(), req.InterviewID, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

type createInterviewRequest struct {
	Role          string           `json:"role"`
	InterviewType string           `json:"interviewType"`
	Difficulty    model.Difficulty `json:"difficulty"`
	Duration      int              `json:"duration"`
	ResumeText    string           `json:"resumeText"`
}

type interviewResponse struct {
	Interview *model.Interview `json:"interview"`
	Session   *model.Session   `json:"session,omitempty"`
}

func (h *Handler) handleCreateInterview(w http.ResponseWriter, r *http.Request) {
	var req createInterviewRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user := model.UserFromContext(r.Context())
	iv, sess, err := h.svc.CreateInterview(r.Context(), user.ID, interview.CreateInput{
		Role:          req.Role,
		InterviewType: req.InterviewType,
		Difficulty:    req.Difficulty,
		Duration:      req.Duration,
		ResumeText:    req.ResumeText,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, interviewResponse{Interview: iv, Session: sess})
}

func (h *Handler) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	iv, sess, err := h.svc.GetInterview(r.Context(), chi.URLParam(r, "interviewId"), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, interviewResponse{Interview: iv, Session: sess})
}

type emotionMetricsRequest struct {
	Emotions        map[string]float64 `json:"emotions"`
	ConfidenceScore *float64           `json:"confidenceScore"`
	Timestamp       *time.Time         `json:"timestamp"`
	SpeechMetrics   map[string]float64 `json:"speechMetrics"`
}

type emotionMetricsResponse struct {
	EmotionCount    int `json:"emotionCount"`
	ConfidenceCount int `json:"confidenceCount"`
}

func (h *Handler) handleRecordEmotion(w http.ResponseWriter, r *http.Request) {
	var req emotionMetricsRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sample := emotion.Sample{
		Emotions:        req.Emotions,
		ConfidenceScore: req.ConfidenceScore,
		SpeechMetrics:   req.SpeechMetrics,
	}
	if req.Timestamp != nil {
		sample.Timestamp = req.Timestamp.UTC()
	}

	user := model.UserFromContext(r.Context())
	ec, cc, err := h.svc.RecordEmotion(r.Context(), chi.URLParam(r, "interviewId"), user.ID, sample)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, emotionMetricsResponse{EmotionCount: ec, ConfidenceCount: cc})
}

func (h *Handler) handleEmotionSummary(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sum, err := h.svc.EmotionSummary(r.Context(), chi.URLParam(r, "interviewId"), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sum)
}

func (h *Handler) handleEmotionFeedback(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	analysis, err := h.svc.EmotionFeedback(r.Context(), chi.URLParam(r, "interviewId"), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, analysis)
}

func (h *Handler) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.VerifyCertificate(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}
