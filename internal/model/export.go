package model

import "time"

// InterviewExport is the top-level JSON structure for completed interview export.
type InterviewExport struct {
	ExportedAt time.Time         `json:"exported_at"`
	Count      int               `json:"count"`
	Results    []CandidateResult `json:"results"`
}

// CandidateResult holds one candidate's completed interview for export.
type CandidateResult struct {
	InterviewID   string           `json:"interview_id"`
	SessionID     string           `json:"session_id"`
	Username      string           `json:"username"`
	DisplayName   string           `json:"display_name"`
	Role          string           `json:"role"`
	InterviewType string           `json:"interview_type"`
	Difficulty    Difficulty       `json:"difficulty"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	OverallScore  int              `json:"overall_score"`
	Technical     float64          `json:"technical_score"`
	Communication float64          `json:"communication_score"`
	Problem       float64          `json:"problem_solving_score"`
	Grade         Grade            `json:"grade,omitempty"`
	CertificateID string           `json:"certificate_id,omitempty"`
	Questions     []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Number      int              `json:"number"`
	Question    string           `json:"question"`
	Answer      string           `json:"answer"`
	Category    Category         `json:"category"`
	Score       float64          `json:"score"`
	Feedback    string           `json:"feedback"`
	EvaluatedBy EvaluationSource `json:"evaluated_by,omitempty"`
}
