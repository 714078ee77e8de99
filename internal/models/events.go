package models

import "time"

// Event types
const (
	EventTypeEnrollmentCompleted = "ENROLLMENT_COMPLETED"
	EventTypeEnrollmentRetry     = "ENROLLMENT_RETRY"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// EnrollmentCompletedEvent published after a payment has been reconciled
// into the user's enrollment bundle
type EnrollmentCompletedEvent struct {
	BaseEvent
	Email     string    `json:"email"`
	CourseID  string    `json:"course_id"`
	Title     string    `json:"title"`
	OrderID   string    `json:"order_id"`
	Amount    int64     `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
	Renewal   bool      `json:"renewal"`
}

// EnrollmentRetryEvent published when the record store was unavailable;
// the retry worker re-runs the reconciliation, which is idempotent per
// orderId so a duplicate replay is harmless
type EnrollmentRetryEvent struct {
	BaseEvent
	Payment  ResolvedPayment `json:"payment"`
	Attempts int             `json:"attempts"`
}
