package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"enrollment-service/internal/catalog"
	"enrollment-service/internal/enrollment"
	"enrollment-service/internal/models"
	"enrollment-service/internal/provider"
	"enrollment-service/internal/service"
	"enrollment-service/internal/store"
	"enrollment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// EnrollmentReconciler is the slice of the reconciler the handlers use.
type EnrollmentReconciler interface {
	Reconcile(ctx context.Context, payment models.ResolvedPayment, attempts int) (*service.Result, error)
	GetEnrollments(ctx context.Context, email string) (enrollment.Bundle, error)
}

// PaymentProvider is the slice of the provider client the handlers use.
type PaymentProvider interface {
	Confirm(ctx context.Context, req provider.ConfirmRequest) (json.RawMessage, error)
	Cancel(ctx context.Context, req provider.CancelRequest) (json.RawMessage, error)
}

// Handler contains HTTP handlers
type Handler struct {
	reconciler EnrollmentReconciler
	provider   PaymentProvider
	catalog    *catalog.Catalog
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(reconciler EnrollmentReconciler, paymentProvider PaymentProvider, courseCatalog *catalog.Catalog) *Handler {
	return &Handler{
		reconciler: reconciler,
		provider:   paymentProvider,
		catalog:    courseCatalog,
		logger:     util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/payments/webhook", h.paymentWebhook)
		v1.OPTIONS("/payments/webhook", h.preflight)
		v1.POST("/payments/confirm", h.confirmPayment)
		v1.POST("/payments/cancel", h.cancelPayment)
		v1.GET("/enrollments/:email", h.getEnrollments)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// preflight acknowledges CORS pre-flight requests
func (h *Handler) preflight(c *gin.Context) {
	c.Status(http.StatusOK)
}

// paymentWebhook reconciles a payment-provider notification into the
// paying user's enrollment record.
//
// Everything outside the relevant event class is acknowledged with 200 so
// the sender stops retrying. 400 and 404 mark payments that moved money
// but cannot be credited automatically; they need operator attention.
func (h *Handler) paymentWebhook(c *gin.Context) {
	var notification models.PaymentNotification
	if err := c.ShouldBindJSON(&notification); err != nil {
		util.WebhooksIgnoredTotal.WithLabelValues("malformed_body").Inc()
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "ignored: unreadable notification body",
		})
		return
	}

	eventLabel := "other"
	if notification.EventType == models.EventTypeDepositCallback {
		eventLabel = models.EventTypeDepositCallback
	}
	util.WebhooksReceivedTotal.WithLabelValues(eventLabel).Inc()

	if notification.EventType != models.EventTypeDepositCallback {
		util.WebhooksIgnoredTotal.WithLabelValues("event_type").Inc()
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "ignored: event type " + notification.EventType,
		})
		return
	}

	event := notification.Data
	if event == nil {
		util.WebhooksIgnoredTotal.WithLabelValues("missing_data").Inc()
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "ignored: notification has no data",
		})
		return
	}

	if event.Status != models.PaymentStatusDone {
		util.WebhooksIgnoredTotal.WithLabelValues("status_pending").Inc()
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "status " + event.Status + " pending",
		})
		return
	}

	email := enrollment.ResolveCustomerEmail(event)
	if email == "" {
		h.logger.Error("Completed payment with no resolvable email",
			zap.String("order_id", event.OrderID))
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "no customer email in notification",
			"orderId": event.OrderID,
		})
		return
	}

	courseID := enrollment.CourseIDFromOrderID(event.OrderID)
	method := event.Method
	if method == "" {
		method = models.DefaultPaymentMethod
	}

	payment := models.ResolvedPayment{
		OrderID:  event.OrderID,
		CourseID: courseID,
		Title:    h.catalog.Title(courseID),
		Email:    email,
		Amount:   event.TotalAmount,
		Method:   method,
	}

	result, err := h.reconciler.Reconcile(c.Request.Context(), payment, 0)
	if err != nil {
		h.respondReconcileError(c, payment, err)
		return
	}

	message := "enrollment completed"
	if result.AlreadyApplied {
		message = "already applied"
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"data": gin.H{
			"email":     result.Email,
			"courseId":  result.CourseID,
			"title":     result.Title,
			"expiresAt": result.ExpiresAt,
		},
	})
}

func (h *Handler) respondReconcileError(c *gin.Context, payment models.ResolvedPayment, err error) {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		h.logger.Error("No account for paid email",
			zap.String("email", payment.Email),
			zap.String("order_id", payment.OrderID))
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "no account matches the paying email",
			"orderId": payment.OrderID,
		})
	default:
		h.logger.Error("Enrollment reconciliation failed",
			zap.String("order_id", payment.OrderID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "enrollment registration failed",
			"orderId": payment.OrderID,
		})
	}
}

// confirmPayment approves a pending payment with the provider
func (h *Handler) confirmPayment(c *gin.Context) {
	var req provider.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "paymentKey, orderId and amount are required",
		})
		return
	}

	data, err := h.provider.Confirm(c.Request.Context(), req)
	if err != nil {
		h.respondProviderError(c, "payment confirmation failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// cancelPayment refunds a payment through the provider
func (h *Handler) cancelPayment(c *gin.Context) {
	var req provider.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "paymentKey is required",
		})
		return
	}

	data, err := h.provider.Cancel(c.Request.Context(), req)
	if err != nil {
		h.respondProviderError(c, "payment cancellation failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func (h *Handler) respondProviderError(c *gin.Context, message string, err error) {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{
			"success": false,
			"error":   apiErr.Message,
			"code":    apiErr.Code,
		})
		return
	}

	h.logger.Error(message, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   message,
	})
}

// getEnrollments returns the current enrollment bundle for a user
func (h *Handler) getEnrollments(c *gin.Context) {
	bundle, err := h.reconciler.GetEnrollments(c.Request.Context(), c.Param("email"))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "user not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "enrollment lookup failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"enrollments": bundle.Enrollments,
			"payments":    bundle.Payments,
		},
	})
}

// corsMiddleware echoes permissive CORS headers on every response,
// including error responses and the OPTIONS pre-flight.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
