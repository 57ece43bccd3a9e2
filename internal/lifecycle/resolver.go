// Package lifecycle holds the exam state machine: the dynamic status resolver,
// the guarded transition functions and the operator action rules. Nothing in
// this package performs I/O.
package lifecycle

import (
	"time"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// Resolve computes the dynamic status of an exam at the given instant.
//
// Pre-approval statuses are reported verbatim. Approved and published exams
// follow the operator's live/completed flags while manual control is on, and
// the schedule window otherwise. Both ends of the window are inclusive.
func Resolve(exam models.Exam, now time.Time) models.DynamicStatus {
	switch exam.Status {
	case models.ExamStatusDraft:
		return models.DynamicStatusDraft
	case models.ExamStatusPendingApproval:
		return models.DynamicStatusPendingApproval
	case models.ExamStatusRejected:
		return models.DynamicStatusRejected
	case models.ExamStatusCancelled:
		return models.DynamicStatusCancelled
	case models.ExamStatusApproved, models.ExamStatusPublished:
		if exam.ManualControl {
			return resolveManual(exam)
		}
		return resolveSchedule(exam, now)
	default:
		// Unknown statuses never open the exam to students.
		return models.DynamicStatusDraft
	}
}

func resolveManual(exam models.Exam) models.DynamicStatus {
	switch {
	case exam.IsCompleted:
		return models.DynamicStatusCompleted
	case exam.IsLive:
		return models.DynamicStatusActive
	default:
		return models.DynamicStatusApproved
	}
}

func resolveSchedule(exam models.Exam, now time.Time) models.DynamicStatus {
	switch {
	case now.Before(exam.StartTime):
		return models.DynamicStatusScheduled
	case now.After(exam.EndTime):
		return models.DynamicStatusCompleted
	default:
		return models.DynamicStatusActive
	}
}

// IsAvailable reports whether a student may begin or resume an attempt right now.
func IsAvailable(exam models.Exam, now time.Time) bool {
	return Resolve(exam, now) == models.DynamicStatusActive
}
