// Package billing processes payment-provider webhooks. Events flip the
// per-user membership flag that selects the question-quota tier; nothing
// else in the system talks to the provider.
//
// Signature scheme: the provider signs `<timestamp>.<payload>` with
// HMAC-SHA256 and sends `t=<unix>,v1=<hex>` in the signature header. Events
// whose signature does not verify, or whose timestamp falls outside the
// tolerance window, change no state.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrInvalidSignature is returned when the signature header is missing,
	// malformed, stale, or fails HMAC verification.
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")

	// ErrUnknownCustomer is returned when the event references a customer id
	// no account row maps to.
	ErrUnknownCustomer = errors.New("billing: unknown customer")
)

// Event types the processor acts on. Anything else is acknowledged and
// ignored so the provider does not retry forever.
const (
	eventCheckoutCompleted    = "checkout.session.completed"
	eventPaymentSucceeded     = "payment_intent.succeeded"
	eventSubscriptionDeleted  = "customer.subscription.deleted"
	eventSubscriptionCanceled = "subscription.canceled"
)

// MembershipStore is the persistence contract the processor depends on.
type MembershipStore interface {
	// SetMembershipByCustomer flips the membership flag of the account whose
	// billing customer id matches; a missing account returns an error.
	SetMembershipByCustomer(ctx context.Context, db *gorm.DB, customerID string, active bool) error
}

// Processor verifies and applies webhook events.
type Processor struct {
	DB     *gorm.DB
	Store  MembershipStore
	Secret string

	// Tolerance bounds the accepted signature timestamp skew; <= 0 means 5m.
	Tolerance time.Duration

	// now is injectable for tests.
	now func() time.Time
}

// NewProcessor constructs a webhook processor.
func NewProcessor(db *gorm.DB, store MembershipStore, secret string, tolerance time.Duration) *Processor {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Processor{DB: db, Store: store, Secret: secret, Tolerance: tolerance, now: time.Now}
}

// event is the subset of the provider payload the processor reads.
type event struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			Customer string `json:"customer"`
		} `json:"object"`
	} `json:"data"`
}

// Process verifies the signature and applies the event. Returns
// ErrInvalidSignature before reading the payload at all when verification
// fails; unrecognized event types return nil so the provider stops retrying.
func (p *Processor) Process(ctx context.Context, payload []byte, sigHeader string) error {
	tr := otel.Tracer("billing/Processor")
	ctx, span := tr.Start(ctx, "Process")
	defer span.End()

	if err := p.verify(payload, sigHeader); err != nil {
		return err
	}

	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("billing: decode event: %w", err)
	}
	span.SetAttributes(attribute.String("event.type", ev.Type))

	var active bool
	switch ev.Type {
	case eventCheckoutCompleted, eventPaymentSucceeded:
		active = true
	case eventSubscriptionDeleted, eventSubscriptionCanceled:
		active = false
	default:
		zerolog.Ctx(ctx).Debug().Str("event_type", ev.Type).Msg("ignoring webhook event")
		return nil
	}

	customer := strings.TrimSpace(ev.Data.Object.Customer)
	if customer == "" {
		return fmt.Errorf("billing: event %s has no customer", ev.Type)
	}

	if err := p.Store.SetMembershipByCustomer(ctx, p.DB, customer, active); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnknownCustomer, customer, err)
	}
	zerolog.Ctx(ctx).Info().
		Str("event_type", ev.Type).
		Bool("membership_active", active).
		Msg("membership updated from webhook")
	span.SetAttributes(attribute.Bool("membership.active", active))
	return nil
}

// verify checks the `t=<unix>,v1=<hex>` header against HMAC-SHA256 of
// `<t>.<payload>` and enforces the timestamp tolerance.
func (p *Processor) verify(payload []byte, sigHeader string) error {
	if p.Secret == "" || sigHeader == "" {
		return ErrInvalidSignature
	}

	var ts int64
	var sigs []string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			ts = n
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrInvalidSignature
	}

	nowfn := p.now
	if nowfn == nil {
		nowfn = time.Now
	}
	skew := nowfn().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > p.Tolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(p.Secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, s := range sigs {
		if hmac.Equal([]byte(expected), []byte(s)) {
			return nil
		}
	}
	return ErrInvalidSignature
}
