// Package services – SubscriptionService
//
// This file implements SubscriptionService, which owns the billing-facing
// account state: linking the external billing customer id to a user account
// (done at checkout time, before any webhook event can arrive), reporting the
// subscription status with the per-tier document allowance, and gating
// uploads against that allowance. The tier flag itself is flipped only by the
// verified billing webhook.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SubscriptionRepo is the persistence contract SubscriptionService depends on.
type SubscriptionRepo interface {
	// HasActiveMembership reports the tier flag; a missing account row is the
	// free tier, not an error.
	HasActiveMembership(ctx context.Context, db *gorm.DB, userID string) (bool, error)

	// CountDocuments returns the number of documents the user owns.
	CountDocuments(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// GetUserByBillingCustomer resolves an external billing customer id to
	// the account row it is linked to.
	GetUserByBillingCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.UserAccount, error)

	// UpsertUserAccount creates the account row if absent and stores the
	// billing customer id on it.
	UpsertUserAccount(ctx context.Context, db *gorm.DB, userID, customerID string) (*domain.UserAccount, error)
}

// SubscriptionStatus is the user-facing subscription snapshot: the tier flag
// plus the document allowance for that tier.
type SubscriptionStatus struct {
	HasActiveMembership bool  `json:"has_active_membership"`
	DocumentCount       int64 `json:"document_count"`
	DocumentLimit       int   `json:"document_limit"`
	OverDocumentLimit   bool  `json:"over_document_limit"`
}

// SubscriptionService reads and links billing account state and enforces the
// per-tier document allowance.
type SubscriptionService struct {
	DB   *gorm.DB
	Repo SubscriptionRepo

	// FreeDocLimit and ProDocLimit cap owned documents per tier. Zero values
	// fall back to 2 and 20.
	FreeDocLimit int
	ProDocLimit  int
}

func (s *SubscriptionService) docLimit(pro bool) int {
	free, proLim := s.FreeDocLimit, s.ProDocLimit
	if free <= 0 {
		free = 2
	}
	if proLim <= 0 {
		proLim = 20
	}
	if pro {
		return proLim
	}
	return free
}

// Status returns the subscription snapshot for the user: tier flag, owned
// document count, and the tier's document limit.
func (s *SubscriptionService) Status(ctx context.Context, userID string) (*SubscriptionStatus, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Status",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	pro, err := s.Repo.HasActiveMembership(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.Repo.CountDocuments(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	limit := s.docLimit(pro)
	span.SetAttributes(
		attribute.Bool("subscription.active", pro),
		attribute.Int64("subscription.documents", count),
	)
	return &SubscriptionStatus{
		HasActiveMembership: pro,
		DocumentCount:       count,
		DocumentLimit:       limit,
		OverDocumentLimit:   count >= int64(limit),
	}, nil
}

// LinkCustomer stores the billing customer id on the user's account row so
// later webhook events can resolve the customer back to the user. Linking is
// idempotent for the same user; a customer id already claimed by a different
// account is rejected.
func (s *SubscriptionService) LinkCustomer(ctx context.Context, userID, customerID string) (*domain.UserAccount, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "LinkCustomer",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, ErrEmptyCustomerID
	}

	existing, err := s.Repo.GetUserByBillingCustomer(ctx, s.DB, customerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil && existing.ID != userID {
		return nil, ErrCustomerClaimed
	}

	return s.Repo.UpsertUserAccount(ctx, s.DB, userID, customerID)
}

// CheckUpload gates a new upload against the tier's document allowance.
// Returns ErrUploadQuotaExceeded when the user already owns the limit.
func (s *SubscriptionService) CheckUpload(ctx context.Context, userID string) error {
	pro, err := s.Repo.HasActiveMembership(ctx, s.DB, userID)
	if err != nil {
		return err
	}
	count, err := s.Repo.CountDocuments(ctx, s.DB, userID)
	if err != nil {
		return err
	}
	if count >= int64(s.docLimit(pro)) {
		return ErrUploadQuotaExceeded
	}
	return nil
}
