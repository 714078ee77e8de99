package models

import "time"

// PaymentNotification is the raw webhook payload from the payment provider.
// Only DEPOSIT_CALLBACK notifications are actionable; everything else is
// acknowledged and dropped.
type PaymentNotification struct {
	EventType string        `json:"eventType"`
	Data      *PaymentEvent `json:"data"`
}

// PaymentEvent carries the settlement details of a single payment. The
// customer email may appear in any one of four locations depending on the
// payment method.
type PaymentEvent struct {
	Status         string          `json:"status"`
	OrderID        string          `json:"orderId"`
	TotalAmount    int64           `json:"totalAmount"`
	Method         string          `json:"method,omitempty"`
	CustomerEmail  string          `json:"customerEmail,omitempty"`
	Customer       *Customer       `json:"customer,omitempty"`
	Receipt        *Receipt        `json:"receipt,omitempty"`
	VirtualAccount *VirtualAccount `json:"virtualAccount,omitempty"`
}

type Customer struct {
	Email string `json:"email,omitempty"`
}

type Receipt struct {
	CustomerEmail string `json:"customerEmail,omitempty"`
}

type VirtualAccount struct {
	CustomerEmail string `json:"customerEmail,omitempty"`
}

// Payment statuses from the provider
const (
	PaymentStatusDone     = "DONE"
	PaymentStatusWaiting  = "WAITING_FOR_DEPOSIT"
	PaymentStatusCanceled = "CANCELED"
)

// Notification event types
const (
	EventTypeDepositCallback = "DEPOSIT_CALLBACK"
)

// UserRecord is one row of the shared user table. PartitionKey/RowKey are
// the row's storage identity; MatchToken is the optimistic-concurrency token
// captured at read time (an ETag for the table backend, a version counter
// for the Postgres backend).
type UserRecord struct {
	PartitionKey    string `json:"PartitionKey"`
	RowKey          string `json:"RowKey"`
	Email           string `json:"email"`
	EnrolledCourses string `json:"enrolledCourses"`
	MatchToken      string `json:"-"`
}

// ResolvedPayment is a PaymentEvent after validation: email resolved and
// lower-cased, courseId derived from the orderId, title from the catalog.
type ResolvedPayment struct {
	OrderID  string `json:"order_id"`
	CourseID string `json:"course_id"`
	Title    string `json:"title"`
	Email    string `json:"email"`
	Amount   int64  `json:"amount"`
	Method   string `json:"method"`
}

// Enrollment is one course access grant inside a user's bundle. At most one
// Enrollment exists per courseId; a repeat payment updates it in place.
type Enrollment struct {
	CourseID           string    `json:"courseId"`
	Title              string    `json:"title"`
	EnrolledAt         time.Time `json:"enrolledAt"`
	Status             string    `json:"status"`
	Progress           int       `json:"progress"`
	LastAccessedAt     time.Time `json:"lastAccessedAt"`
	AccessExpiresAt    time.Time `json:"accessExpiresAt"`
	PaymentID          string    `json:"paymentId"`
	AccessDurationDays int       `json:"accessDurationDays"`
	IsEarlyBird        bool      `json:"isEarlyBird"`
}

// PaymentRecord is one entry of the append-only payment history. Every
// applied notification adds exactly one, even when the enrollment itself
// was a renewal.
type PaymentRecord struct {
	PaymentID string    `json:"paymentId"`
	CourseID  string    `json:"courseId"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	PaidAt    time.Time `json:"paidAt"`
	Status    string    `json:"status"`
}

// Enrollment statuses
const (
	EnrollmentStatusActive = "active"
)

// Payment record statuses
const (
	PaymentRecordCompleted = "completed"
)

// Default payment method recorded when the provider omits one; deposit
// callbacks are virtual-account transfers.
const DefaultPaymentMethod = "VIRTUAL_ACCOUNT"
