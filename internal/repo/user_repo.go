// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the UserAccount
// model, which carries the subscription tier flag read by the quota enforcer
// and written by the billing webhook.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
)

// GetUserAccount fetches the account row for userID, or ErrNotFound.
func GetUserAccount(ctx context.Context, db *gorm.DB, userID string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	if err := db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// HasActiveMembership reports the tier flag for userID. A missing account row
// is the free tier, never an error: absence of a billing record must not block
// the user, nor be treated as implicitly paid.
func HasActiveMembership(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	u, err := GetUserAccount(ctx, db, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.HasActiveMembership, nil
}

// GetUserByBillingCustomer maps an external billing customer id to the
// internal account row, or ErrNotFound.
func GetUserByBillingCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := db.WithContext(ctx).
		Where("billing_customer_id = ?", customerID).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUserAccount creates the account row for userID if absent, otherwise
// updates its billing customer id. Used when a checkout session is created.
func UpsertUserAccount(ctx context.Context, db *gorm.DB, userID, customerID string) (*domain.UserAccount, error) {
	u := &domain.UserAccount{ID: userID}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", userID).First(u).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			u = &domain.UserAccount{
				ID:                userID,
				BillingCustomerID: customerID,
				CreatedAt:         time.Now().UTC(),
			}
			return tx.Create(u).Error
		}
		if customerID != "" && u.BillingCustomerID != customerID {
			u.BillingCustomerID = customerID
			return tx.Model(u).Update("billing_customer_id", customerID).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SetMembershipByCustomer flips the tier flag of the account whose billing
// customer id matches. Returns ErrNotFound when no account maps to the id.
func SetMembershipByCustomer(ctx context.Context, db *gorm.DB, customerID string, active bool) error {
	res := db.WithContext(ctx).
		Model(&domain.UserAccount{}).
		Where("billing_customer_id = ?", customerID).
		Update("has_active_membership", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
