// Subscription HTTP handlers.
//
// This file exposes:
//   - GET  /subscription       (tier flag plus document allowance)
//   - POST /billing/customer   (link the billing customer id at checkout)
//
// The customer link runs before any webhook event can arrive: webhook events
// identify users only by billing customer id, so an unlinked account can
// never be upgraded.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docuchat/go-pdf-chat-backend/internal/services"
)

// LinkCustomerRequest is the JSON payload for linking a billing customer.
type LinkCustomerRequest struct {
	// CustomerID is the payment provider's customer identifier.
	CustomerID string `json:"customer_id" binding:"required,min=1" example:"cus_9f2a41"`
}

// LinkCustomerResponse confirms the stored link.
type LinkCustomerResponse struct {
	UserID     string `json:"user_id"`
	CustomerID string `json:"customer_id"`
}

// SubscriptionStatus godoc
// @ID          subscriptionStatus
// @Summary     Subscription status
// @Description Returns the user's membership tier flag, owned document count, and the tier's document limit.
// @Tags        Billing
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object}  services.SubscriptionStatus
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /subscription [get]
func (h *Handlers) SubscriptionStatus(c *gin.Context) {
	status, err := h.subs.Status(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, status)
}

// LinkBillingCustomer godoc
// @ID          linkBillingCustomer
// @Summary     Link a billing customer to the current user
// @Description Stores the payment provider's customer id on the user's account so webhook events can be attributed.
// @Description Linking is idempotent for the same user; a customer id claimed by another account is rejected.
// @Tags        Billing
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.LinkCustomerRequest  true  "Customer link payload"
//
// @Success     200  {object}  handlers.LinkCustomerResponse
// @Failure     400  {object}  handlers.ErrorResponse "Missing or empty customer id"
// @Failure     409  {object}  handlers.ErrorResponse "Customer already linked to another account"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /billing/customer [post]
func (h *Handlers) LinkBillingCustomer(c *gin.Context) {
	var req LinkCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "customer_id required")
		return
	}

	acct, err := h.subs.LinkCustomer(c.Request.Context(), userID(c), strings.TrimSpace(req.CustomerID))
	if err != nil {
		switch err {
		case services.ErrEmptyCustomerID:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "customer_id required")
		case services.ErrCustomerClaimed:
			fail(c, http.StatusConflict, ErrCodeConflict, "billing customer already linked to another account")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, LinkCustomerResponse{
		UserID:     acct.ID,
		CustomerID: acct.BillingCustomerID,
	})
}
