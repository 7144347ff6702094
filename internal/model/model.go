package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level (distinct from Role which is conversation turn roles).
type UserRole string

const (
	// UserRoleCandidate is a job-seeker taking interviews.
	UserRoleCandidate UserRole = "candidate"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	DisplayName  string    `json:"display_name" bson:"display_name"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Role         UserRole  `json:"role" bson:"role"`
	Active       bool      `json:"active" bson:"active"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Role represents a conversation turn role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// SessionStatus represents the status of an interview session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// InterviewStatus represents the status of an interview record.
type InterviewStatus string

const (
	InterviewScheduled  InterviewStatus = "scheduled"
	InterviewInProgress InterviewStatus = "in-progress"
	InterviewCompleted  InterviewStatus = "completed"
	InterviewCancelled  InterviewStatus = "cancelled"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Category classifies a question for score aggregation.
type Category string

const (
	CategoryTechnical      Category = "technical"
	CategoryBehavioral     Category = "behavioral"
	CategoryCoding         Category = "coding"
	CategoryGeneral        Category = "general"
	CategoryProblemSolving Category = "problem-solving"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryTechnical, CategoryBehavioral, CategoryCoding, CategoryGeneral, CategoryProblemSolving:
		return true
	}
	return false
}

// EvaluationSource records whether a score came from the oracle or the local fallback.
type EvaluationSource string

const (
	SourceOracle   EvaluationSource = "oracle"
	SourceFallback EvaluationSource = "fallback"
)

// Turn is one entry of a session's conversation.
type Turn struct {
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Type      string    `json:"type" bson:"type"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// QuestionEvaluation is one element of the evaluation ledger.
type QuestionEvaluation struct {
	QuestionNumber int              `json:"questionNumber" bson:"question_number"`
	Question       string           `json:"question" bson:"question"`
	UserAnswer     string           `json:"userAnswer" bson:"user_answer"`
	Score          float64          `json:"score" bson:"score"`
	Feedback       string           `json:"feedback" bson:"feedback"`
	Category       Category         `json:"category" bson:"category"`
	Difficulty     Difficulty       `json:"difficulty" bson:"difficulty"`
	Strengths      []string         `json:"strengths" bson:"strengths"`
	Improvements   []string         `json:"improvements" bson:"improvements"`
	CodeSubmitted  string           `json:"codeSubmitted,omitempty" bson:"code_submitted,omitempty"`
	TimeSpent      float64          `json:"timeSpent,omitempty" bson:"time_spent,omitempty"`
	EvaluatedBy    EvaluationSource `json:"evaluatedBy,omitempty" bson:"evaluated_by,omitempty"`
	EvaluatedAt    time.Time        `json:"evaluatedAt" bson:"evaluated_at"`
}

// TechnicalAnalysis holds the canned narrative for technical skills.
type TechnicalAnalysis struct {
	CoreConcepts           string `json:"coreConcepts" bson:"core_concepts"`
	ProblemSolvingApproach string `json:"problemSolvingApproach" bson:"problem_solving_approach"`
	CodeQuality            string `json:"codeQuality" bson:"code_quality"`
	BestPractices          string `json:"bestPractices" bson:"best_practices"`
}

// BehavioralAnalysis holds the canned narrative for soft skills.
type BehavioralAnalysis struct {
	Communication   string `json:"communication" bson:"communication"`
	Confidence      string `json:"confidence" bson:"confidence"`
	Professionalism string `json:"professionalism" bson:"professionalism"`
	Adaptability    string `json:"adaptability" bson:"adaptability"`
}

// EmotionalAnalysis is produced from the emotion timeline on demand.
type EmotionalAnalysis struct {
	EmotionalFeedback  string    `json:"emotionalFeedback" bson:"emotional_feedback"`
	ConfidenceLevel    string    `json:"confidenceLevel" bson:"confidence_level"`
	ConfidenceFeedback string    `json:"confidenceFeedback" bson:"confidence_feedback"`
	DominantEmotions   []string  `json:"dominantEmotions" bson:"dominant_emotions"`
	Recommendations    []string  `json:"recommendations" bson:"recommendations"`
	GeneratedAt        time.Time `json:"generatedAt" bson:"generated_at"`
}

// Feedback is the structured result attached to a completed session.
type Feedback struct {
	Summary            string             `json:"summary" bson:"summary"`
	Strengths          []string           `json:"strengths" bson:"strengths"`
	Improvements       []string           `json:"improvements" bson:"improvements"`
	KeyHighlights      []string           `json:"keyHighlights" bson:"key_highlights"`
	AreasOfConcern     []string           `json:"areasOfConcern" bson:"areas_of_concern"`
	TechnicalAnalysis  TechnicalAnalysis  `json:"technicalAnalysis" bson:"technical_analysis"`
	BehavioralAnalysis BehavioralAnalysis `json:"behavioralAnalysis" bson:"behavioral_analysis"`
	EmotionalAnalysis  *EmotionalAnalysis `json:"emotionalAnalysis,omitempty" bson:"emotional_analysis,omitempty"`
}

// Stats summarises the ledger at completion.
type Stats struct {
	TotalQuestions      int     `json:"totalQuestions" bson:"total_questions"`
	QuestionsAnswered   int     `json:"questionsAnswered" bson:"questions_answered"`
	QuestionsSkipped    int     `json:"questionsSkipped" bson:"questions_skipped"`
	AverageResponseTime float64 `json:"averageResponseTime" bson:"average_response_time"`
	TotalTimeSpent      float64 `json:"totalTimeSpent" bson:"total_time_spent"`
}

// EmotionSample is one point of the emotion timeline.
type EmotionSample struct {
	Timestamp     time.Time          `json:"timestamp" bson:"timestamp"`
	Emotions      map[string]float64 `json:"emotions" bson:"emotions"`
	SpeechMetrics map[string]float64 `json:"speechMetrics,omitempty" bson:"speech_metrics,omitempty"`
}

// ConfidenceSample is one point of the confidence series.
type ConfidenceSample struct {
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Value     float64   `json:"value" bson:"value"`
}

// Metrics holds the capped emotion and confidence series of a session.
type Metrics struct {
	EmotionTimeline []EmotionSample    `json:"emotionTimeline" bson:"emotion_timeline"`
	Confidence      []ConfidenceSample `json:"confidence" bson:"confidence"`
}

// Session is the stateful record of one attempted interview.
type Session struct {
	ID                  string               `json:"id" bson:"_id"`
	InterviewID         string               `json:"interviewId" bson:"interview_id"`
	UserID              string               `json:"userId" bson:"user_id"`
	Status              SessionStatus        `json:"status" bson:"status"`
	Conversation        []Turn               `json:"conversation" bson:"conversation"`
	QuestionEvaluations []QuestionEvaluation `json:"questionEvaluations" bson:"question_evaluations"`
	OverallScore        int                  `json:"overallScore" bson:"overall_score"`
	TechnicalScore      float64              `json:"technicalScore" bson:"technical_score"`
	CommunicationScore  float64              `json:"communicationScore" bson:"communication_score"`
	ProblemSolvingScore float64              `json:"problemSolvingScore" bson:"problem_solving_score"`
	Feedback            *Feedback            `json:"feedback,omitempty" bson:"feedback,omitempty"`
	Stats               Stats                `json:"stats" bson:"stats"`
	Metrics             Metrics              `json:"metrics" bson:"metrics"`
	Certificate         *Certificate         `json:"certificate,omitempty" bson:"certificate,omitempty"`
	Version             int64                `json:"version" bson:"version"`
	StartedAt           time.Time            `json:"startedAt" bson:"started_at"`
	CompletedAt         *time.Time           `json:"completedAt,omitempty" bson:"completed_at,omitempty"`
	UpdatedAt           time.Time            `json:"updatedAt" bson:"updated_at"`
}

// Interview is the configuration and summary record of an interview.
type Interview struct {
	ID                  string          `json:"id" bson:"_id"`
	UserID              string          `json:"userId" bson:"user_id"`
	Role                string          `json:"role" bson:"role"`
	InterviewType       string          `json:"interviewType" bson:"interview_type"`
	Difficulty          Difficulty      `json:"difficulty" bson:"difficulty"`
	Duration            int             `json:"duration" bson:"duration"`
	ResumeText          string          `json:"resumeText,omitempty" bson:"resume_text,omitempty"`
	Status              InterviewStatus `json:"status" bson:"status"`
	SessionID           string          `json:"sessionId,omitempty" bson:"session_id,omitempty"`
	OverallScore        int             `json:"overallScore" bson:"overall_score"`
	TechnicalScore      float64         `json:"technicalScore" bson:"technical_score"`
	CommunicationScore  float64         `json:"communicationScore" bson:"communication_score"`
	ProblemSolvingScore float64         `json:"problemSolvingScore" bson:"problem_solving_score"`
	Feedback            string          `json:"feedback,omitempty" bson:"feedback,omitempty"`
	Strengths           []string        `json:"strengths,omitempty" bson:"strengths,omitempty"`
	Improvements        []string        `json:"improvements,omitempty" bson:"improvements,omitempty"`
	Certificate         *Certificate    `json:"certificate,omitempty" bson:"certificate,omitempty"`
	CreatedAt           time.Time       `json:"createdAt" bson:"created_at"`
	CompletedAt         *time.Time      `json:"completedAt,omitempty" bson:"completed_at,omitempty"`
}

// Grade is the certificate letter grade.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// Certificate is an issued, time-bounded proof of completion. All fields are a
// snapshot taken at issuance.
type Certificate struct {
	CertificateID    string    `json:"certificateId" bson:"certificate_id"`
	VerificationCode string    `json:"verificationCode" bson:"verification_code"`
	IssuedAt         time.Time `json:"issuedAt" bson:"issued_at"`
	ValidUntil       time.Time `json:"validUntil" bson:"valid_until"`
	Grade            Grade     `json:"grade" bson:"grade"`
	Score            int       `json:"score" bson:"score"`
	Domain           string    `json:"domain" bson:"domain"`
	InterviewType    string    `json:"interviewType" bson:"interview_type"`
	UserName         string    `json:"userName" bson:"user_name"`
}

// Config holds runtime service parameters set via CLI flags.
type Config struct {
	PromptVariant string        // Evaluation prompt variant (strict, standard, lenient)
	OracleTimeout time.Duration // Upper bound on a single oracle call
	JWTSecret     string
	TokenTTL      time.Duration
	CORSOrigins   []string
}
