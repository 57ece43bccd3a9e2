package lifecycle

import (
	"strings"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// Each transition takes the exam by value and returns the mutated copy. On
// error the returned exam is the zero value and the input is untouched.

// Submit moves a draft into the approval queue.
func Submit(exam models.Exam) (models.Exam, error) {
	if exam.Status != models.ExamStatusDraft {
		return models.Exam{}, invalid(ActionSubmit, exam, "only drafts can be submitted")
	}
	exam.Status = models.ExamStatusPendingApproval
	return exam, nil
}

// Approve accepts a pending exam, optionally publishing it at once.
func Approve(exam models.Exam, approverID uint, publishNow bool) (models.Exam, error) {
	action := ActionApprove
	if publishNow {
		action = ActionApproveAndPublish
	}
	if exam.Status != models.ExamStatusPendingApproval {
		return models.Exam{}, invalid(action, exam, "exam is not pending approval")
	}

	exam.Status = models.ExamStatusApproved
	if publishNow {
		exam.Status = models.ExamStatusPublished
	}
	exam.ApproverID = &approverID
	exam.RejectionReason = ""
	return exam, nil
}

// Reject sends a pending exam back to its author with a mandatory reason.
func Reject(exam models.Exam, approverID uint, reason string) (models.Exam, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Exam{}, &ValidationError{Field: "reason", Message: "a rejection reason is required"}
	}
	if exam.Status != models.ExamStatusPendingApproval {
		return models.Exam{}, invalid(ActionReject, exam, "exam is not pending approval")
	}

	exam.Status = models.ExamStatusRejected
	exam.RejectionReason = reason
	exam.ApproverID = &approverID
	return exam, nil
}

// Resubmit returns an edited, rejected exam to the approval queue.
func Resubmit(exam models.Exam) (models.Exam, error) {
	if exam.Status != models.ExamStatusRejected {
		return models.Exam{}, invalid(ActionResubmit, exam, "only rejected exams can be resubmitted")
	}
	exam.Status = models.ExamStatusPendingApproval
	exam.RejectionReason = ""
	return exam, nil
}

// Publish makes an approved exam visible to students.
func Publish(exam models.Exam) (models.Exam, error) {
	if exam.Status != models.ExamStatusApproved {
		return models.Exam{}, invalid(ActionPublish, exam, "only approved exams can be published")
	}
	exam.Status = models.ExamStatusPublished
	return exam, nil
}

// Cancel withdraws an exam that is queued, approved or published.
func Cancel(exam models.Exam) (models.Exam, error) {
	switch exam.Status {
	case models.ExamStatusPendingApproval, models.ExamStatusApproved, models.ExamStatusPublished:
	default:
		return models.Exam{}, invalid(ActionCancel, exam, "exam cannot be cancelled from this status")
	}
	exam.Status = models.ExamStatusCancelled
	exam.ManualControl = false
	exam.IsLive = false
	exam.IsCompleted = false
	return exam, nil
}

// EnableManualControl hands availability to the operator. Both flags are reset
// so the operator has to go live explicitly.
func EnableManualControl(exam models.Exam) (models.Exam, error) {
	if !manualControlAllowed(exam.Status) {
		return models.Exam{}, invalid(ActionEnableManualControl, exam, "manual control requires an approved or published exam")
	}
	exam.ManualControl = true
	exam.IsLive = false
	exam.IsCompleted = false
	return exam, nil
}

// DisableManualControl returns the exam to its schedule window. The live and
// completed flags are left as they are; the resolver ignores them.
func DisableManualControl(exam models.Exam) (models.Exam, error) {
	if !exam.ManualControl {
		return models.Exam{}, invalid(ActionDisableManualControl, exam, "manual control is not enabled")
	}
	exam.ManualControl = false
	return exam, nil
}

// MakeLive opens a manually controlled exam to students.
func MakeLive(exam models.Exam) (models.Exam, error) {
	if !exam.ManualControl {
		return models.Exam{}, invalid(ActionMakeLive, exam, "manual control is not enabled")
	}
	if exam.IsCompleted {
		return models.Exam{}, invalid(ActionMakeLive, exam, "exam has already been completed")
	}
	exam.IsLive = true
	return exam, nil
}

// MarkCompleted closes a live, manually controlled exam.
func MarkCompleted(exam models.Exam) (models.Exam, error) {
	if !exam.ManualControl {
		return models.Exam{}, invalid(ActionMarkCompleted, exam, "manual control is not enabled")
	}
	if !exam.IsLive {
		return models.Exam{}, invalid(ActionMarkCompleted, exam, "exam is not live")
	}
	exam.IsLive = false
	exam.IsCompleted = true
	return exam, nil
}

// CheckDelete verifies the exam may be removed permanently.
func CheckDelete(exam models.Exam) error {
	if !deletable(exam.Status) {
		return &GuardError{Action: ActionDelete, Reason: "only draft or rejected exams can be deleted"}
	}
	if exam.HasAttempts() {
		return &GuardError{Action: ActionDelete, Reason: "students have already attempted this exam"}
	}
	return nil
}

func manualControlAllowed(status models.ExamStatus) bool {
	return status == models.ExamStatusApproved || status == models.ExamStatusPublished
}

func deletable(status models.ExamStatus) bool {
	return status == models.ExamStatusDraft || status == models.ExamStatusRejected
}
