package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"enrollment-service/internal/enrollment"
	"enrollment-service/internal/models"
	"enrollment-service/internal/store"
	"enrollment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// writeAttempts bounds the re-read + re-merge + retry loop on
	// optimistic-concurrency conflicts.
	writeAttempts = 3

	// maxRetryPublishes bounds how often a store-unavailable failure is
	// re-queued through Kafka before it is given up to the sender's own
	// retry loop.
	maxRetryPublishes = 5

	storeCallTimeout = 5 * time.Second
	appliedMarkerTTL = 72 * time.Hour
)

// AppliedOrderCache is the Redis fast path for re-delivered orders. It is
// best-effort; the payment history stored in the user record stays
// authoritative.
type AppliedOrderCache interface {
	MarkOrderApplied(ctx context.Context, orderID string, summary []byte, ttl time.Duration) error
	AppliedOrderSummary(ctx context.Context, orderID string) ([]byte, bool, error)
}

// EventPublisher publishes reconciliation outcomes to the broker.
type EventPublisher interface {
	PublishEnrollmentCompleted(ctx context.Context, event *models.EnrollmentCompletedEvent) error
	PublishEnrollmentRetry(ctx context.Context, event *models.EnrollmentRetryEvent) error
}

// Result is the outcome of a reconciliation.
type Result struct {
	enrollment.Summary
	AlreadyApplied bool
}

// Reconciler drives the lookup -> merge -> conditional write sequence for
// settled payments. It is stateless; concurrency correctness comes from the
// store's match-token contract.
type Reconciler struct {
	store     store.UserStore
	cache     AppliedOrderCache
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewReconciler creates a new reconciler
func NewReconciler(userStore store.UserStore, cache AppliedOrderCache, publisher EventPublisher) *Reconciler {
	return &Reconciler{
		store:     userStore,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Reconcile applies one settled payment to the owning user record.
// Re-delivery of an already-applied orderId returns the original outcome
// without writing. attempts counts prior retry-queue replays of this
// payment; pass 0 from the HTTP path.
//
// Errors are store.ErrUserNotFound, store.ErrConflict (retries exhausted)
// or store.ErrUnavailable, possibly wrapped.
func (r *Reconciler) Reconcile(ctx context.Context, payment models.ResolvedPayment, attempts int) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Reconcile")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReconcileLatency.Observe(time.Since(start).Seconds())
	}()

	if result, ok := r.cachedResult(ctx, payment.OrderID); ok {
		return result, nil
	}

	for attempt := 0; attempt < writeAttempts; attempt++ {
		result, err := r.tryApply(ctx, payment)
		if errors.Is(err, store.ErrConflict) {
			util.StoreConflictsTotal.Inc()
			r.logger.Warn("Write conflict, re-reading user record",
				zap.String("order_id", payment.OrderID),
				zap.Int("attempt", attempt+1))
			continue
		}
		if errors.Is(err, store.ErrUnavailable) {
			util.EnrollmentsFailedTotal.WithLabelValues("store_unavailable").Inc()
			r.queueRetry(payment, attempts)
			return nil, err
		}
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				util.EnrollmentsFailedTotal.WithLabelValues("user_not_found").Inc()
			}
			return nil, err
		}
		return result, nil
	}

	util.EnrollmentsFailedTotal.WithLabelValues("conflict").Inc()
	return nil, fmt.Errorf("write conflict after %d attempts: %w", writeAttempts, store.ErrConflict)
}

// tryApply runs one lookup -> merge -> conditional write pass.
func (r *Reconciler) tryApply(ctx context.Context, payment models.ResolvedPayment) (*Result, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	user, err := r.store.FindUserByEmail(lookupCtx, payment.Email)
	if err != nil {
		return nil, classifyStoreErr(err)
	}

	bundle := enrollment.ParseBundle(user.EnrolledCourses)

	if enrollment.AppliedOrder(bundle, payment.OrderID) {
		util.EnrollmentsDuplicateTotal.Inc()
		r.logger.Info("Notification already applied, skipping",
			zap.String("order_id", payment.OrderID),
			zap.String("email", payment.Email))
		result := &Result{
			Summary:        appliedSummary(bundle, payment),
			AlreadyApplied: true,
		}
		r.markApplied(ctx, payment.OrderID, result.Summary)
		return result, nil
	}

	now := r.now()
	updated, summary := enrollment.MergeBundle(bundle, payment, now)

	writeCtx, cancelWrite := context.WithTimeout(ctx, storeCallTimeout)
	defer cancelWrite()

	err = r.store.UpdateEnrollments(writeCtx, user, store.EnrollmentUpdate{
		EnrolledCourses:      enrollment.EncodeBundle(updated),
		TotalEnrolledCourses: len(updated.Enrollments),
		UpdatedAt:            now,
	})
	if err != nil {
		return nil, classifyStoreErr(err)
	}

	util.PaymentsRecordedTotal.Inc()
	if summary.Renewal {
		util.EnrollmentsRenewedTotal.Inc()
	} else {
		util.EnrollmentsCreatedTotal.Inc()
	}

	r.logger.Info("Enrollment reconciled",
		zap.String("email", summary.Email),
		zap.String("course_id", summary.CourseID),
		zap.Bool("renewal", summary.Renewal),
		zap.Time("expires_at", summary.ExpiresAt))

	r.markApplied(ctx, payment.OrderID, summary)
	r.publishCompleted(ctx, payment, summary)

	return &Result{Summary: summary}, nil
}

// cachedResult answers a re-delivered notification from the Redis marker
// without touching the store.
func (r *Reconciler) cachedResult(ctx context.Context, orderID string) (*Result, bool) {
	if r.cache == nil {
		return nil, false
	}

	raw, ok, err := r.cache.AppliedOrderSummary(ctx, orderID)
	if err != nil {
		r.logger.Warn("Applied-order cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var summary enrollment.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, false
	}

	util.EnrollmentsDuplicateTotal.Inc()
	return &Result{Summary: summary, AlreadyApplied: true}, true
}

func (r *Reconciler) markApplied(ctx context.Context, orderID string, summary enrollment.Summary) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := r.cache.MarkOrderApplied(ctx, orderID, raw, appliedMarkerTTL); err != nil {
		r.logger.Warn("Failed to mark order applied", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (r *Reconciler) publishCompleted(ctx context.Context, payment models.ResolvedPayment, summary enrollment.Summary) {
	if r.publisher == nil {
		return
	}
	event := &models.EnrollmentCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeEnrollmentCompleted,
			Timestamp: r.now(),
		},
		Email:     summary.Email,
		CourseID:  summary.CourseID,
		Title:     summary.Title,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		ExpiresAt: summary.ExpiresAt,
		Renewal:   summary.Renewal,
	}
	if err := r.publisher.PublishEnrollmentCompleted(ctx, event); err != nil {
		r.logger.Error("Failed to publish EnrollmentCompleted event", zap.Error(err))
	}
}

// queueRetry hands a store-unavailable failure to the retry worker. The
// publish uses a fresh context: the request context may already be dead.
func (r *Reconciler) queueRetry(payment models.ResolvedPayment, attempts int) {
	if r.publisher == nil || attempts >= maxRetryPublishes {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := &models.EnrollmentRetryEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeEnrollmentRetry,
			Timestamp: r.now(),
		},
		Payment:  payment,
		Attempts: attempts + 1,
	}
	if err := r.publisher.PublishEnrollmentRetry(ctx, event); err != nil {
		r.logger.Error("Failed to queue enrollment retry",
			zap.String("order_id", payment.OrderID), zap.Error(err))
	}
}

// appliedSummary rebuilds the response summary for an order that was
// already credited on a prior delivery.
func appliedSummary(bundle enrollment.Bundle, payment models.ResolvedPayment) enrollment.Summary {
	summary := enrollment.Summary{
		Email:    payment.Email,
		CourseID: payment.CourseID,
		Title:    payment.Title,
	}
	for _, e := range bundle.Enrollments {
		if e.CourseID == payment.CourseID {
			summary.ExpiresAt = e.AccessExpiresAt
			summary.Renewal = true
			break
		}
	}
	return summary
}

// classifyStoreErr folds timeouts into the unavailable class.
func classifyStoreErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
