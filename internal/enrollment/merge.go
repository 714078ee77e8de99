package enrollment

import (
	"encoding/json"
	"strings"
	"time"

	"enrollment-service/internal/models"
)

// AccessDurationDays is the fixed access window granted per payment.
// Renewals recompute the expiry from "now" rather than stacking onto the
// old expiry, so a lapsed course gets a full fresh window.
const AccessDurationDays = 90

// Bundle is the parsed form of a user's enrolledCourses attribute.
type Bundle struct {
	Enrollments []models.Enrollment    `json:"enrollments"`
	Payments    []models.PaymentRecord `json:"payments"`
}

// Summary describes the outcome of a merge for the HTTP response and for
// the published event.
type Summary struct {
	Email     string    `json:"email"`
	CourseID  string    `json:"courseId"`
	Title     string    `json:"title"`
	ExpiresAt time.Time `json:"expiresAt"`
	Renewal   bool      `json:"renewal"`
}

// ParseBundle decodes the stored enrolledCourses text. It never fails past
// this boundary: a missing attribute yields an empty bundle, a legacy bare
// array is treated as the enrollments list, and anything unparseable is
// discarded so a corrupted field cannot block a new payment from being
// credited.
func ParseBundle(raw string) Bundle {
	bundle := Bundle{
		Enrollments: []models.Enrollment{},
		Payments:    []models.PaymentRecord{},
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return bundle
	}

	var legacy []models.Enrollment
	if err := json.Unmarshal([]byte(raw), &legacy); err == nil {
		if legacy != nil {
			bundle.Enrollments = legacy
		}
		return bundle
	}

	var parsed Bundle
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return bundle
	}

	if parsed.Enrollments == nil {
		parsed.Enrollments = []models.Enrollment{}
	}
	if parsed.Payments == nil {
		parsed.Payments = []models.PaymentRecord{}
	}
	return parsed
}

// AppliedOrder reports whether orderID is already present in the bundle's
// payment history. Webhook delivery is at-least-once; a re-delivered
// notification for an applied order must be a no-op.
func AppliedOrder(bundle Bundle, orderID string) bool {
	for _, p := range bundle.Payments {
		if p.PaymentID == orderID {
			return true
		}
	}
	return false
}

// EncodeBundle serializes a bundle back to the stored text form.
func EncodeBundle(bundle Bundle) string {
	out, err := json.Marshal(bundle)
	if err != nil {
		// Only reachable on a programmer error in the bundle types.
		panic(err)
	}
	return string(out)
}

// Merge applies a settled payment to the stored enrollments text and
// returns the updated text plus a summary. Pure: no I/O, deterministic
// given now.
//
// An existing enrollment for the same course is replaced in place with the
// expiry recomputed from now (renewal extends, never stacks); otherwise the
// new enrollment is appended. A PaymentRecord is appended on every call.
func Merge(raw string, payment models.ResolvedPayment, now time.Time) (string, Summary) {
	bundle := ParseBundle(raw)
	updated, summary := MergeBundle(bundle, payment, now)
	return EncodeBundle(updated), summary
}

// MergeBundle is Merge on an already-parsed bundle.
func MergeBundle(bundle Bundle, payment models.ResolvedPayment, now time.Time) (Bundle, Summary) {
	expiresAt := now.Add(AccessDurationDays * 24 * time.Hour)

	candidate := models.Enrollment{
		CourseID:           payment.CourseID,
		Title:              payment.Title,
		EnrolledAt:         now,
		Status:             models.EnrollmentStatusActive,
		Progress:           0,
		LastAccessedAt:     now,
		AccessExpiresAt:    expiresAt,
		PaymentID:          payment.OrderID,
		AccessDurationDays: AccessDurationDays,
		IsEarlyBird:        false,
	}

	renewal := false
	for i := range bundle.Enrollments {
		if bundle.Enrollments[i].CourseID == payment.CourseID {
			bundle.Enrollments[i] = candidate
			renewal = true
			break
		}
	}
	if !renewal {
		bundle.Enrollments = append(bundle.Enrollments, candidate)
	}

	method := payment.Method
	if method == "" {
		method = models.DefaultPaymentMethod
	}

	bundle.Payments = append(bundle.Payments, models.PaymentRecord{
		PaymentID: payment.OrderID,
		CourseID:  payment.CourseID,
		Amount:    payment.Amount,
		Method:    method,
		PaidAt:    now,
		Status:    models.PaymentRecordCompleted,
	})

	return bundle, Summary{
		Email:     payment.Email,
		CourseID:  payment.CourseID,
		Title:     payment.Title,
		ExpiresAt: expiresAt,
		Renewal:   renewal,
	}
}
