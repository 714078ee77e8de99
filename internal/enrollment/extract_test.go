package enrollment

import (
	"testing"

	"enrollment-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestResolveCustomerEmailPrecedence(t *testing.T) {
	event := &models.PaymentEvent{
		CustomerEmail:  "top@example.com",
		Customer:       &models.Customer{Email: "customer@example.com"},
		Receipt:        &models.Receipt{CustomerEmail: "receipt@example.com"},
		VirtualAccount: &models.VirtualAccount{CustomerEmail: "va@example.com"},
	}

	assert.Equal(t, "top@example.com", ResolveCustomerEmail(event))

	event.CustomerEmail = ""
	assert.Equal(t, "customer@example.com", ResolveCustomerEmail(event))

	event.Customer = nil
	assert.Equal(t, "receipt@example.com", ResolveCustomerEmail(event))

	event.Receipt = &models.Receipt{}
	assert.Equal(t, "va@example.com", ResolveCustomerEmail(event))
}

func TestResolveCustomerEmailCaseFolds(t *testing.T) {
	event := &models.PaymentEvent{
		VirtualAccount: &models.VirtualAccount{CustomerEmail: "User@Example.com"},
	}

	assert.Equal(t, "user@example.com", ResolveCustomerEmail(event))
}

func TestResolveCustomerEmailTrimsWhitespace(t *testing.T) {
	event := &models.PaymentEvent{CustomerEmail: "  user@example.com \n"}

	assert.Equal(t, "user@example.com", ResolveCustomerEmail(event))
}

func TestResolveCustomerEmailNone(t *testing.T) {
	assert.Equal(t, "", ResolveCustomerEmail(&models.PaymentEvent{}))
	assert.Equal(t, "", ResolveCustomerEmail(&models.PaymentEvent{CustomerEmail: "   "}))
}

func TestCourseIDFromOrderID(t *testing.T) {
	assert.Equal(t, "vibe-coding", CourseIDFromOrderID("vibe-coding_1700000000000"))
	assert.Equal(t, "solo-business", CourseIDFromOrderID("solo-business_abc_def"))
	assert.Equal(t, "no-separator", CourseIDFromOrderID("no-separator"))
	assert.Equal(t, "", CourseIDFromOrderID("_leading"))
}
