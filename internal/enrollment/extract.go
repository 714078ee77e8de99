package enrollment

import (
	"strings"

	"enrollment-service/internal/models"
)

// emailRule pulls a candidate email out of one location in the payment
// event. Rules are evaluated in priority order; the first non-empty result
// wins.
type emailRule func(*models.PaymentEvent) string

var emailRules = []emailRule{
	func(e *models.PaymentEvent) string { return e.CustomerEmail },
	func(e *models.PaymentEvent) string {
		if e.Customer != nil {
			return e.Customer.Email
		}
		return ""
	},
	func(e *models.PaymentEvent) string {
		if e.Receipt != nil {
			return e.Receipt.CustomerEmail
		}
		return ""
	},
	func(e *models.PaymentEvent) string {
		if e.VirtualAccount != nil {
			return e.VirtualAccount.CustomerEmail
		}
		return ""
	},
}

// ResolveCustomerEmail finds the customer email in a payment event. The
// result is trimmed and lower-cased to match the store's email index; an
// empty return means the payment is unaddressable.
func ResolveCustomerEmail(event *models.PaymentEvent) string {
	for _, rule := range emailRules {
		if email := strings.TrimSpace(rule(event)); email != "" {
			return strings.ToLower(email)
		}
	}
	return ""
}

// CourseIDFromOrderID recovers the course id from an order id of the form
// "<courseId>_<opaque-suffix>". An order id without a separator is used
// as-is.
func CourseIDFromOrderID(orderID string) string {
	if i := strings.Index(orderID, "_"); i >= 0 {
		return orderID[:i]
	}
	return orderID
}
