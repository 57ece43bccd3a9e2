package dto

import (
	"time"

	"github.com/noah-isme/gema-exam-api/internal/lifecycle"
	"github.com/noah-isme/gema-exam-api/internal/models"
)

// ExamCreateRequest captures the payload for drafting a new exam.
type ExamCreateRequest struct {
	SchoolID  uint      `json:"school_id" validate:"required"`
	Title     string    `json:"title" validate:"required,min=3,max=255"`
	Subject   string    `json:"subject" validate:"omitempty,max=128"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

// ExamActionRequest is the operator's confirmed request for one action.
type ExamActionRequest struct {
	Action     lifecycle.Action `json:"-" validate:"required"`
	Confirmed  bool             `json:"confirmed"`
	PublishNow bool             `json:"publish_now"`
	Enabled    *bool            `json:"enabled"`
	Reason     string           `json:"reason" validate:"max=2000"`
}

// ExamListRequest defines filters for listing exams.
type ExamListRequest struct {
	Page     int
	PageSize int
	SchoolID uint
	Status   string
	Search   string
	Sort     string
}

// ExamResponse is the operator view of an exam: stored fields plus the
// dynamic status and the actions legal at the time it was resolved.
type ExamResponse struct {
	ID                uint                 `json:"id"`
	SchoolID          uint                 `json:"school_id"`
	AuthorID          uint                 `json:"author_id"`
	Title             string               `json:"title"`
	Subject           string               `json:"subject"`
	Status            models.ExamStatus    `json:"status"`
	DynamicStatus     models.DynamicStatus `json:"dynamic_status"`
	Available         bool                 `json:"available"`
	StartTime         time.Time            `json:"start_time"`
	EndTime           time.Time            `json:"end_time"`
	ManualControl     bool                 `json:"manual_control"`
	IsLive            bool                 `json:"is_live"`
	IsCompleted       bool                 `json:"is_completed"`
	RejectionReason   string               `json:"rejection_reason,omitempty"`
	ApproverID        *uint                `json:"approver_id,omitempty"`
	StudentsAttempted int                  `json:"students_attempted"`
	Version           uint                 `json:"version"`
	Actions           []lifecycle.Action   `json:"actions"`
	ResolvedAt        time.Time            `json:"resolved_at"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// ExamListResponse wraps a paginated exam list.
type ExamListResponse struct {
	Items      []ExamResponse `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// ExamTransitionResponse serializes one lifecycle history entry.
type ExamTransitionResponse struct {
	ID         uint              `json:"id"`
	Action     string            `json:"action"`
	FromStatus models.ExamStatus `json:"from_status"`
	ToStatus   models.ExamStatus `json:"to_status"`
	ActorID    uint              `json:"actor_id"`
	ActorRole  string            `json:"actor_role"`
	Reason     string            `json:"reason,omitempty"`
	Version    uint              `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ExamAvailabilityResponse answers whether a student may start the exam now.
type ExamAvailabilityResponse struct {
	ExamID        uint                 `json:"exam_id"`
	DynamicStatus models.DynamicStatus `json:"dynamic_status"`
	Available     bool                 `json:"available"`
	CheckedAt     time.Time            `json:"checked_at"`
	CacheHit      bool                 `json:"cache_hit"`
}

// ExamAttemptResponse confirms a started attempt.
type ExamAttemptResponse struct {
	ExamID            uint                 `json:"exam_id"`
	DynamicStatus     models.DynamicStatus `json:"dynamic_status"`
	StudentsAttempted int                  `json:"students_attempted"`
	StartedAt         time.Time            `json:"started_at"`
}

// ExamEvent is broadcast to exam board subscribers after every applied transition.
type ExamEvent struct {
	Action        lifecycle.Action     `json:"action"`
	ExamID        uint                 `json:"exam_id"`
	SchoolID      uint                 `json:"school_id"`
	Status        models.ExamStatus    `json:"status"`
	DynamicStatus models.DynamicStatus `json:"dynamic_status"`
	Version       uint                 `json:"version"`
	ActorID       uint                 `json:"actor_id"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// NewExamResponse resolves the exam at the given instant and builds its view.
func NewExamResponse(exam models.Exam, now time.Time) ExamResponse {
	dynamic := lifecycle.Resolve(exam, now)
	return ExamResponse{
		ID:                exam.ID,
		SchoolID:          exam.SchoolID,
		AuthorID:          exam.AuthorID,
		Title:             exam.Title,
		Subject:           exam.Subject,
		Status:            exam.Status,
		DynamicStatus:     dynamic,
		Available:         dynamic == models.DynamicStatusActive,
		StartTime:         exam.StartTime,
		EndTime:           exam.EndTime,
		ManualControl:     exam.ManualControl,
		IsLive:            exam.IsLive,
		IsCompleted:       exam.IsCompleted,
		RejectionReason:   exam.RejectionReason,
		ApproverID:        exam.ApproverID,
		StudentsAttempted: exam.StudentsAttempted,
		Version:           exam.Version,
		Actions:           lifecycle.LegalActions(exam),
		ResolvedAt:        now,
		CreatedAt:         exam.CreatedAt,
		UpdatedAt:         exam.UpdatedAt,
	}
}

// NewExamTransitionResponse converts a history row into its DTO.
func NewExamTransitionResponse(transition models.ExamTransition) ExamTransitionResponse {
	return ExamTransitionResponse{
		ID:         transition.ID,
		Action:     transition.Action,
		FromStatus: transition.FromStatus,
		ToStatus:   transition.ToStatus,
		ActorID:    transition.ActorID,
		ActorRole:  transition.ActorRole,
		Reason:     transition.Reason,
		Version:    transition.Version,
		CreatedAt:  transition.CreatedAt,
	}
}

// ExamActionResponse reports the outcome of an operator action. Exam holds
// the freshly resolved view and is omitted once the exam has been deleted.
type ExamActionResponse struct {
	Action  lifecycle.Action `json:"action"`
	Exam    *ExamResponse    `json:"exam,omitempty"`
	Deleted bool             `json:"deleted"`
}
