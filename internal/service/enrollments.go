package service

import (
	"context"
	"strings"

	"enrollment-service/internal/enrollment"
)

// GetEnrollments returns the parsed enrollment bundle for a user. The email
// is case-folded before lookup.
func (r *Reconciler) GetEnrollments(ctx context.Context, email string) (enrollment.Bundle, error) {
	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	user, err := r.store.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return enrollment.Bundle{}, classifyStoreErr(err)
	}
	return enrollment.ParseBundle(user.EnrolledCourses), nil
}
