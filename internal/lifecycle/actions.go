package lifecycle

import "github.com/noah-isme/gema-exam-api/internal/models"

// Action names an operation an operator can request on an exam.
type Action string

const (
	ActionSubmit               Action = "submit"
	ActionApprove              Action = "approve"
	ActionApproveAndPublish    Action = "approve_and_publish"
	ActionReject               Action = "reject"
	ActionResubmit             Action = "resubmit"
	ActionPublish              Action = "publish"
	ActionCancel               Action = "cancel"
	ActionEnableManualControl  Action = "enable_manual_control"
	ActionDisableManualControl Action = "disable_manual_control"
	ActionToggleManualControl  Action = "toggle_manual_control"
	ActionMakeLive             Action = "make_live"
	ActionMarkCompleted        Action = "mark_completed"
	ActionDelete               Action = "delete"
)

// String implements fmt.Stringer.
func (a Action) String() string {
	return string(a)
}

// LegalActions returns the actions that should be offered for the exam in its
// current state. Actions that are not legal are omitted rather than disabled.
func LegalActions(exam models.Exam) []Action {
	actions := make([]Action, 0, 4)

	switch exam.Status {
	case models.ExamStatusDraft:
		actions = append(actions, ActionSubmit)
	case models.ExamStatusPendingApproval:
		actions = append(actions, ActionApprove, ActionApproveAndPublish, ActionReject, ActionCancel)
	case models.ExamStatusRejected:
		actions = append(actions, ActionResubmit)
	case models.ExamStatusApproved:
		actions = append(actions, ActionPublish, ActionCancel)
		actions = appendManualActions(actions, exam)
	case models.ExamStatusPublished:
		actions = append(actions, ActionCancel)
		actions = appendManualActions(actions, exam)
	case models.ExamStatusCancelled:
	}

	if CheckDelete(exam) == nil {
		actions = append(actions, ActionDelete)
	}

	return actions
}

func appendManualActions(actions []Action, exam models.Exam) []Action {
	if !exam.ManualControl {
		return append(actions, ActionEnableManualControl)
	}

	actions = append(actions, ActionDisableManualControl)
	switch {
	case exam.IsLive:
		actions = append(actions, ActionMarkCompleted)
	case !exam.IsCompleted:
		actions = append(actions, ActionMakeLive)
	}
	return actions
}
