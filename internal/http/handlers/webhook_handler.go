// Billing webhook HTTP handler.
//
// This file exposes:
//   - POST /billing/webhook  (payment-provider event delivery)
//
// The raw body is read before any JSON parsing because signature
// verification runs over the exact payload bytes. Unverifiable events are
// rejected with 400 and change no state; unknown event types are
// acknowledged with 200 so the provider stops retrying.
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docuchat/go-pdf-chat-backend/internal/billing"
	"github.com/docuchat/go-pdf-chat-backend/internal/http/middleware"
)

// HeaderBillingSignature carries the provider's `t=<unix>,v1=<hex>`
// signature over the raw payload.
const HeaderBillingSignature = "Billing-Signature"

// maxWebhookBody caps the accepted webhook payload size.
const maxWebhookBody = 256 << 10

// BillingWebhook godoc
// @ID          billingWebhook
// @Summary     Receive a billing provider webhook
// @Description Verifies the payload signature and updates the user's membership tier.
// @Tags        Billing
// @Accept      json
// @Produce     json
//
// @Param       Billing-Signature  header  string  true  "t=<unix>,v1=<hex> signature over the raw payload"
//
// @Success     200  {object}  map[string]bool "Acknowledged"
// @Failure     400  {object}  handlers.ErrorResponse "Invalid signature or payload"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /billing/webhook [post]
func (h *Handlers) BillingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read payload")
		return
	}

	sig := c.GetHeader(HeaderBillingSignature)
	if err := h.webhook.Process(c.Request.Context(), payload, sig); err != nil {
		switch err {
		case billing.ErrInvalidSignature:
			fail(c, http.StatusBadRequest, ErrCodeInvalidSignature, "webhook signature verification failed")
		default:
			// Unknown customers and malformed events are client errors from
			// the provider's perspective; log and reject without retry-bait.
			middleware.LoggerFrom(c).Warn().Err(err).Msg("webhook rejected")
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "event could not be applied")
		}
		return
	}

	ok(c, http.StatusOK, gin.H{"received": true})
}
