package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"enrollment-service/internal/catalog"
	"enrollment-service/internal/enrollment"
	"enrollment-service/internal/models"
	"enrollment-service/internal/provider"
	"enrollment-service/internal/service"
	"enrollment-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconciler struct {
	calls   []models.ResolvedPayment
	result  *service.Result
	err     error
	bundle  enrollment.Bundle
	lookups []string
}

func (f *fakeReconciler) Reconcile(ctx context.Context, payment models.ResolvedPayment, attempts int) (*service.Result, error) {
	f.calls = append(f.calls, payment)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeReconciler) GetEnrollments(ctx context.Context, email string) (enrollment.Bundle, error) {
	f.lookups = append(f.lookups, email)
	if f.err != nil {
		return enrollment.Bundle{}, f.err
	}
	return f.bundle, nil
}

type fakeProvider struct {
	confirmErr error
	cancelErr  error
}

func (f *fakeProvider) Confirm(ctx context.Context, req provider.ConfirmRequest) (json.RawMessage, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return json.RawMessage(`{"orderId":"` + req.OrderID + `"}`), nil
}

func (f *fakeProvider) Cancel(ctx context.Context, req provider.CancelRequest) (json.RawMessage, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return json.RawMessage(`{"status":"CANCELED"}`), nil
}

func newTestRouter(rec *fakeReconciler, prov *fakeProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(rec, prov, catalog.Default()).SetupRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func depositNotification(event *models.PaymentEvent) models.PaymentNotification {
	return models.PaymentNotification{
		EventType: models.EventTypeDepositCallback,
		Data:      event,
	}
}

func TestWebhookPreflight(t *testing.T) {
	router := newTestRouter(&fakeReconciler{}, &fakeProvider{})

	w := doJSON(router, http.MethodOptions, "/api/v1/payments/webhook", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	rec := &fakeReconciler{}
	router := newTestRouter(rec, &fakeProvider{})

	w := doJSON(router, http.MethodPost, "/api/v1/payments/webhook", models.PaymentNotification{
		EventType: "PAYMENT_STATUS_CHANGED",
		Data:      &models.PaymentEvent{Status: models.PaymentStatusDone},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, rec.calls)
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestWebhookIgnoresMissingData(t *testing.T) {
	rec := &fakeReconciler{}
	router := newTestRouter(rec, &fakeProvider{})

	w := doJSON(router, http.MethodPost, "/api/v1/payments/webhook", models.PaymentNotification{
		EventType: models.EventTypeDepositCallback,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, rec.calls)
}

func TestWebhookAcknowledgesPendingStatus(t *testing.T) {
	rec := &fakeReconciler{}
	router := newTestRouter(rec, &fakeProvider{})

	w := doJSON(router, http.MethodPost, "/api/v1/payments/webhook", depositNotification(&models.PaymentEvent{
		Status:        models.PaymentStatusWaiting,
		OrderID:       "vibe-coding_1700000000000",
		CustomerEmail: "user@example.com",
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, rec.calls)
	assert.Contains(t, w.Body.String(), "pending")
}

func TestWebhookRejectsUnaddressablePayment(t *testing.T) {
	rec := &fakeReconciler{}
	router := newTestRouter(rec, &fakeProvider{})

	w := doJSON(router, http.MethodPost, "/api/v1/payments/webhook", depositNotification(&models.PaymentEvent{
		Status:  models.PaymentStatusDone,
		OrderID: "vibe-coding_1700000000000",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rec.calls)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestWebhookReconcilesDeposit(t *testing.T) {
	expiresAt := time.Date(2026, 6, 13, 12, 0, 0, 0, time.UTC)
	rec := &fakeReconciler{
		result: &service.Result{Summary: enrollment.Summary{
			Email:     "user@example.com",
			CourseID:  "vibe-coding",
			Title:     "바이브코딩",
			ExpiresAt: expiresAt,
		}},
	}
	router := newTestRouter(rec, &fakeProvider{})

	w := doJSON(router, http.MethodPost, "/api/v1/payments/webhook", depositNotification(&models.PaymentEvent{
		Status:         models.PaymentStatusDone,
		OrderID:        "vibe-coding_1700000000000",
		TotalAmount:    150000,
		VirtualAccount: &models.VirtualAccount{CustomerEmail: "User@Example.com"},
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "user@example.com", rec.calls[0].Email)
	assert.Equal(t, "vibe-coding", rec.calls[0].CourseID)
	assert.Equal(t, "바이브코딩", rec.calls[0].Title)
	assert.Equal(t, int64(150000), rec.calls[0].Amount)
	assert.Equal(t, models.DefaultPaymentMethod, rec.calls[0].Method)
	assert.Contains(t, w.Body.String(), "vibe-coding")
}

func TestWebhookUserNotFound(t *testing.T) {
	rec := &fakeReconciler{err: store.ErrUserNotFound}
	router := newTestRouter(rec, &fakeProvider{})

	w := doJSON(router, http.MethodPost, "/api/v1/payments/webhook", depositNotification(&models.PaymentEvent{
		Status:        models.PaymentStatusDone,
		OrderID:       "vibe-coding_1700000000000",
		CustomerEmail: "missing@example.com",
	}))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookStoreFailure(t *testing.T) {
	rec := &fakeReconciler{err: store.ErrUnavailable}
	router := newTestRouter(rec, &fakeProvider{})

	w := doJSON(router, http.MethodPost, "/api/v1/payments/webhook", depositNotification(&models.PaymentEvent{
		Status:        models.PaymentStatusDone,
		OrderID:       "vibe-coding_1700000000000",
		CustomerEmail: "user@example.com",
	}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestConfirmPaymentValidation(t *testing.T) {
	router := newTestRouter(&fakeReconciler{}, &fakeProvider{})

	w := doJSON(router, http.MethodPost, "/api/v1/payments/confirm", map[string]string{
		"paymentKey": "pay_123",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmPaymentPassesProviderStatus(t *testing.T) {
	router := newTestRouter(&fakeReconciler{}, &fakeProvider{
		confirmErr: &provider.APIError{Status: http.StatusConflict, Code: "ALREADY_PROCESSED_PAYMENT", Message: "already processed"},
	})

	w := doJSON(router, http.MethodPost, "/api/v1/payments/confirm", provider.ConfirmRequest{
		PaymentKey: "pay_123", OrderID: "vibe-coding_1", Amount: 150000,
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ALREADY_PROCESSED_PAYMENT")
}

func TestCancelPayment(t *testing.T) {
	router := newTestRouter(&fakeReconciler{}, &fakeProvider{})

	w := doJSON(router, http.MethodPost, "/api/v1/payments/cancel", provider.CancelRequest{
		PaymentKey: "pay_123",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "CANCELED")
}

func TestGetEnrollments(t *testing.T) {
	rec := &fakeReconciler{bundle: enrollment.Bundle{
		Enrollments: []models.Enrollment{{CourseID: "vibe-coding", Status: models.EnrollmentStatusActive}},
		Payments:    []models.PaymentRecord{},
	}}
	router := newTestRouter(rec, &fakeProvider{})

	w := doJSON(router, http.MethodGet, "/api/v1/enrollments/user@example.com", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"user@example.com"}, rec.lookups)
	assert.Contains(t, w.Body.String(), "vibe-coding")
}

func TestGetEnrollmentsNotFound(t *testing.T) {
	rec := &fakeReconciler{err: store.ErrUserNotFound}
	router := newTestRouter(rec, &fakeProvider{})

	w := doJSON(router, http.MethodGet, "/api/v1/enrollments/missing@example.com", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
