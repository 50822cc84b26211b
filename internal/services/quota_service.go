// Package services – QuotaService
//
// Enforces the per-document question allowance. The allowance counts only
// the user's own human messages under a document, so assistant replies never
// consume quota. The tier limit comes from the billing membership flag:
// missing account rows count as free tier.
package services

import (
	"context"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
)

// QuotaRepo is the persistence contract QuotaService depends on.
type QuotaRepo interface {
	// CountMessagesByRole counts the user's messages with the given role
	// under a document.
	CountMessagesByRole(ctx context.Context, db *gorm.DB, documentID, userID, role string) (int64, error)

	// HasActiveMembership reports the user's paid-tier flag; a missing
	// account row reports false with no error.
	HasActiveMembership(ctx context.Context, db *gorm.DB, userID string) (bool, error)
}

// QuotaService decides whether one more question is allowed.
type QuotaService struct {
	DB   *gorm.DB
	Repo QuotaRepo

	FreeLimit int
	ProLimit  int
}

// NewQuotaService constructs a QuotaService with the default tier limits.
func NewQuotaService(db *gorm.DB, r QuotaRepo) *QuotaService {
	return &QuotaService{DB: db, Repo: r, FreeLimit: 2, ProLimit: 100}
}

// Check returns nil when the user may ask one more question about the
// document and ErrQuotaExceeded when the allowance is spent.
//
// Check is a read followed by a later insert, not an atomic reservation:
// concurrent requests can each observe limit-1 and both pass. The limits
// guard cost, not correctness, so a rare overshoot by one is acceptable.
func (s *QuotaService) Check(ctx context.Context, userID, documentID string) error {
	tr := otel.Tracer("services/QuotaService")
	ctx, span := tr.Start(ctx, "Check",
		trace.WithAttributes(
			attribute.String("document.id", documentID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	limit, err := s.Limit(ctx, userID)
	if err != nil {
		return err
	}

	used, err := s.Repo.CountMessagesByRole(ctx, s.DB, documentID, userID, domain.RoleHuman)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64("quota.used", used), attribute.Int("quota.limit", limit))

	if used >= int64(limit) {
		return ErrQuotaExceeded
	}
	return nil
}

// Limit resolves the user's per-document allowance from their tier.
func (s *QuotaService) Limit(ctx context.Context, userID string) (int, error) {
	pro, err := s.Repo.HasActiveMembership(ctx, s.DB, userID)
	if err != nil {
		return 0, err
	}
	if pro {
		return s.limitOr(s.ProLimit, 100), nil
	}
	return s.limitOr(s.FreeLimit, 2), nil
}

func (s *QuotaService) limitOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
