package ports

import "time"

// Background task names.
const (
	TaskNotifyAccountLocked = "notify_account_locked"
	TaskOfferPasswordReset  = "offer_password_reset"
	TaskRemoveRefreshToken  = "remove_refresh_token"
	TaskReportError         = "report_error"
)

// Task is a named unit of deferred work. Key decides ordering: tasks sharing
// a key run in submission order.
type Task struct {
	ID         string
	Name       string
	Key        string
	Args       map[string]string
	EnqueuedAt time.Time
}

// TaskArgRefreshToken names the token a remove_refresh_token task may delete.
// Without it the task deletes whatever token the user holds.
const TaskArgRefreshToken = "refresh_token"

// TaskQueue accepts fire-and-forget work. Enqueue never blocks the caller and
// reports false when the task was not accepted.
type TaskQueue interface {
	Enqueue(task Task) bool
}
