package store

import (
	"context"
	"errors"
	"time"

	"enrollment-service/internal/models"
)

// Store error classes. The reconciler maps these to HTTP statuses, so every
// backend must report failures through them.
var (
	// ErrUserNotFound means the email matched zero rows.
	ErrUserNotFound = errors.New("user not found")

	// ErrConflict means the record changed between read and write; the
	// caller should re-read, re-merge and retry.
	ErrConflict = errors.New("record modified concurrently")

	// ErrUnavailable means the store could not be reached or answered with
	// a server error. Timeouts are reported as unavailable.
	ErrUnavailable = errors.New("record store unavailable")
)

// EnrollmentUpdate is the attribute set written back to a user record after
// a merge.
type EnrollmentUpdate struct {
	EnrolledCourses      string
	TotalEnrolledCourses int
	UpdatedAt            time.Time
}

// UserStore is the record-store contract the reconciler depends on.
//
// FindUserByEmail matches case-insensitively against the store's lower-cased
// email index and returns ErrUserNotFound (never a nil record) on zero rows.
//
// UpdateEnrollments writes the enrollment attributes only if the record's
// match token is unchanged since the read that produced user; a stale token
// yields ErrConflict. Side effects are confined to that single record.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*models.UserRecord, error)
	UpdateEnrollments(ctx context.Context, user *models.UserRecord, update EnrollmentUpdate) error
}
