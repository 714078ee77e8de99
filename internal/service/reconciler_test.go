package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"enrollment-service/internal/enrollment"
	"enrollment-service/internal/models"
	"enrollment-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reconcileNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory UserStore with version match tokens. Writes can
// be made to fail a set number of times to exercise the retry loop.
type fakeStore struct {
	users        map[string]*models.UserRecord
	versions     map[string]int
	findCalls    int
	updateCalls  int
	conflicts    int
	unavailables int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*models.UserRecord{},
		versions: map[string]int{},
	}
}

func (f *fakeStore) addUser(email, enrolledCourses string) {
	f.users[email] = &models.UserRecord{
		PartitionKey:    "users",
		RowKey:          email,
		Email:           email,
		EnrolledCourses: enrolledCourses,
	}
	f.versions[email] = 1
}

func (f *fakeStore) FindUserByEmail(ctx context.Context, email string) (*models.UserRecord, error) {
	f.findCalls++
	if f.unavailables > 0 {
		f.unavailables--
		return nil, store.ErrUnavailable
	}
	user, ok := f.users[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *user
	copied.MatchToken = strconv.Itoa(f.versions[email])
	return &copied, nil
}

func (f *fakeStore) UpdateEnrollments(ctx context.Context, user *models.UserRecord, update store.EnrollmentUpdate) error {
	f.updateCalls++
	if f.conflicts > 0 {
		f.conflicts--
		return store.ErrConflict
	}
	if user.MatchToken != strconv.Itoa(f.versions[user.Email]) {
		return store.ErrConflict
	}
	f.users[user.Email].EnrolledCourses = update.EnrolledCourses
	f.versions[user.Email]++
	return nil
}

type fakePublisher struct {
	completed []*models.EnrollmentCompletedEvent
	retries   []*models.EnrollmentRetryEvent
}

func (f *fakePublisher) PublishEnrollmentCompleted(ctx context.Context, event *models.EnrollmentCompletedEvent) error {
	f.completed = append(f.completed, event)
	return nil
}

func (f *fakePublisher) PublishEnrollmentRetry(ctx context.Context, event *models.EnrollmentRetryEvent) error {
	f.retries = append(f.retries, event)
	return nil
}

func newTestReconciler(fs *fakeStore, pub *fakePublisher) *Reconciler {
	r := NewReconciler(fs, nil, pub)
	r.now = func() time.Time { return reconcileNow }
	return r
}

func reconcilePayment() models.ResolvedPayment {
	return models.ResolvedPayment{
		OrderID:  "vibe-coding_1700000000000",
		CourseID: "vibe-coding",
		Title:    "바이브코딩",
		Email:    "user@example.com",
		Amount:   150000,
		Method:   "VIRTUAL_ACCOUNT",
	}
}

func TestReconcileNewEnrollment(t *testing.T) {
	fs := newFakeStore()
	fs.addUser("user@example.com", "")
	pub := &fakePublisher{}

	result, err := newTestReconciler(fs, pub).Reconcile(context.Background(), reconcilePayment(), 0)

	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)
	assert.False(t, result.Renewal)
	assert.WithinDuration(t, reconcileNow.Add(90*24*time.Hour), result.ExpiresAt, time.Second)

	bundle := enrollment.ParseBundle(fs.users["user@example.com"].EnrolledCourses)
	assert.Len(t, bundle.Enrollments, 1)
	assert.Len(t, bundle.Payments, 1)

	require.Len(t, pub.completed, 1)
	assert.Equal(t, "vibe-coding", pub.completed[0].CourseID)
	assert.Empty(t, pub.retries)
}

func TestReconcileRenewal(t *testing.T) {
	expired, _ := enrollment.Merge("", models.ResolvedPayment{
		OrderID: "vibe-coding_1600000000000", CourseID: "vibe-coding",
		Title: "바이브코딩", Email: "user@example.com", Amount: 150000,
	}, reconcileNow.Add(-200*24*time.Hour))

	fs := newFakeStore()
	fs.addUser("user@example.com", expired)

	result, err := newTestReconciler(fs, &fakePublisher{}).Reconcile(context.Background(), reconcilePayment(), 0)

	require.NoError(t, err)
	assert.True(t, result.Renewal)
	assert.WithinDuration(t, reconcileNow.Add(90*24*time.Hour), result.ExpiresAt, time.Second)

	bundle := enrollment.ParseBundle(fs.users["user@example.com"].EnrolledCourses)
	assert.Len(t, bundle.Enrollments, 1)
	assert.Len(t, bundle.Payments, 2)
}

func TestReconcileRedeliveryIsNoOp(t *testing.T) {
	fs := newFakeStore()
	fs.addUser("user@example.com", "")
	r := newTestReconciler(fs, &fakePublisher{})

	_, err := r.Reconcile(context.Background(), reconcilePayment(), 0)
	require.NoError(t, err)
	writesAfterFirst := fs.updateCalls

	result, err := r.Reconcile(context.Background(), reconcilePayment(), 0)
	require.NoError(t, err)
	assert.True(t, result.AlreadyApplied)
	assert.Equal(t, writesAfterFirst, fs.updateCalls)

	bundle := enrollment.ParseBundle(fs.users["user@example.com"].EnrolledCourses)
	assert.Len(t, bundle.Payments, 1)
}

func TestReconcileUserNotFound(t *testing.T) {
	fs := newFakeStore()

	_, err := newTestReconciler(fs, &fakePublisher{}).Reconcile(context.Background(), reconcilePayment(), 0)

	assert.ErrorIs(t, err, store.ErrUserNotFound)
	assert.Zero(t, fs.updateCalls)
}

func TestReconcileRetriesOnConflict(t *testing.T) {
	fs := newFakeStore()
	fs.addUser("user@example.com", "")
	fs.conflicts = 1

	result, err := newTestReconciler(fs, &fakePublisher{}).Reconcile(context.Background(), reconcilePayment(), 0)

	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)
	assert.Equal(t, 2, fs.findCalls)
	assert.Equal(t, 2, fs.updateCalls)
}

func TestReconcileConflictExhausted(t *testing.T) {
	fs := newFakeStore()
	fs.addUser("user@example.com", "")
	fs.conflicts = writeAttempts

	_, err := newTestReconciler(fs, &fakePublisher{}).Reconcile(context.Background(), reconcilePayment(), 0)

	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, writeAttempts, fs.updateCalls)

	// Nothing was credited
	bundle := enrollment.ParseBundle(fs.users["user@example.com"].EnrolledCourses)
	assert.Empty(t, bundle.Payments)
}

func TestReconcileUnavailableQueuesRetry(t *testing.T) {
	fs := newFakeStore()
	fs.addUser("user@example.com", "")
	fs.unavailables = 1
	pub := &fakePublisher{}

	_, err := newTestReconciler(fs, pub).Reconcile(context.Background(), reconcilePayment(), 0)

	assert.ErrorIs(t, err, store.ErrUnavailable)
	require.Len(t, pub.retries, 1)
	assert.Equal(t, 1, pub.retries[0].Attempts)
	assert.Equal(t, "vibe-coding_1700000000000", pub.retries[0].Payment.OrderID)
}

func TestReconcileRetryPublishBounded(t *testing.T) {
	fs := newFakeStore()
	fs.addUser("user@example.com", "")
	fs.unavailables = 1
	pub := &fakePublisher{}

	_, err := newTestReconciler(fs, pub).Reconcile(context.Background(), reconcilePayment(), maxRetryPublishes)

	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Empty(t, pub.retries)
}

func TestGetEnrollments(t *testing.T) {
	raw, _ := enrollment.Merge("", reconcilePayment(), reconcileNow)
	fs := newFakeStore()
	fs.addUser("user@example.com", raw)

	bundle, err := newTestReconciler(fs, &fakePublisher{}).GetEnrollments(context.Background(), " User@Example.com ")

	require.NoError(t, err)
	assert.Len(t, bundle.Enrollments, 1)
}
