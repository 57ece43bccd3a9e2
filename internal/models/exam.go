package models

import "time"

// ExamStatus is the persisted lifecycle stage of an exam.
type ExamStatus string

const (
	// ExamStatusDraft marks an exam still being authored.
	ExamStatusDraft ExamStatus = "DRAFT"
	// ExamStatusPendingApproval marks an exam waiting for a school administrator.
	ExamStatusPendingApproval ExamStatus = "PENDING_APPROVAL"
	// ExamStatusApproved marks an approved exam that is not yet published.
	ExamStatusApproved ExamStatus = "APPROVED"
	// ExamStatusRejected marks an exam sent back to its author.
	ExamStatusRejected ExamStatus = "REJECTED"
	// ExamStatusPublished marks an approved exam visible to students.
	ExamStatusPublished ExamStatus = "PUBLISHED"
	// ExamStatusCancelled marks an exam withdrawn by an administrator.
	ExamStatusCancelled ExamStatus = "CANCELLED"
)

// ExamStatuses lists every persisted status.
var ExamStatuses = []ExamStatus{
	ExamStatusDraft,
	ExamStatusPendingApproval,
	ExamStatusApproved,
	ExamStatusRejected,
	ExamStatusPublished,
	ExamStatusCancelled,
}

// Valid reports whether the status is one of the known persisted statuses.
func (s ExamStatus) Valid() bool {
	switch s {
	case ExamStatusDraft, ExamStatusPendingApproval, ExamStatusApproved,
		ExamStatusRejected, ExamStatusPublished, ExamStatusCancelled:
		return true
	default:
		return false
	}
}

// DynamicStatus is the effective status of an exam, recomputed on every read.
type DynamicStatus string

const (
	DynamicStatusDraft           DynamicStatus = "DRAFT"
	DynamicStatusPendingApproval DynamicStatus = "PENDING_APPROVAL"
	DynamicStatusRejected        DynamicStatus = "REJECTED"
	DynamicStatusCancelled       DynamicStatus = "CANCELLED"
	DynamicStatusApproved        DynamicStatus = "APPROVED"
	DynamicStatusScheduled       DynamicStatus = "SCHEDULED"
	DynamicStatusActive          DynamicStatus = "ACTIVE"
	DynamicStatusCompleted       DynamicStatus = "COMPLETED"
)

// Exam is the persisted exam record with its lifecycle fields.
type Exam struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	SchoolID          uint       `gorm:"index;not null" json:"school_id"`
	AuthorID          uint       `gorm:"index;not null" json:"author_id"`
	Title             string     `gorm:"size:255;not null" json:"title"`
	Subject           string     `gorm:"size:128" json:"subject"`
	Status            ExamStatus `gorm:"size:32;index;not null" json:"status"`
	StartTime         time.Time  `gorm:"not null" json:"start_time"`
	EndTime           time.Time  `gorm:"not null" json:"end_time"`
	ManualControl     bool       `gorm:"not null;default:false" json:"manual_control"`
	IsLive            bool       `gorm:"not null;default:false" json:"is_live"`
	IsCompleted       bool       `gorm:"not null;default:false" json:"is_completed"`
	RejectionReason   string     `gorm:"type:text" json:"rejection_reason"`
	ApproverID        *uint      `json:"approver_id"`
	StudentsAttempted int        `gorm:"not null;default:0" json:"students_attempted"`
	Version           uint       `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasAttempts reports whether any student has started the exam.
func (e Exam) HasAttempts() bool {
	return e.StudentsAttempted > 0
}

// ExamTransition records one applied lifecycle transition.
type ExamTransition struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ExamID     uint       `gorm:"index;not null" json:"exam_id"`
	Action     string     `gorm:"size:64;not null" json:"action"`
	FromStatus ExamStatus `gorm:"size:32;not null" json:"from_status"`
	ToStatus   ExamStatus `gorm:"size:32;not null" json:"to_status"`
	ActorID    uint       `gorm:"not null" json:"actor_id"`
	ActorRole  string     `gorm:"size:32;not null" json:"actor_role"`
	Reason     string     `gorm:"type:text" json:"reason"`
	Version    uint       `gorm:"not null" json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
}
