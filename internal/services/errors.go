// Package services defines the business logic for documents, questions, and
// billing state. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrDocumentNotFound indicates that the requested document does not
	// exist or is not accessible to the current user.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrEmptyQuestion is returned when a question request contains an
	// empty or whitespace-only question.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrTooLong is returned when a question exceeds the maximum configured
	// length limit.
	ErrTooLong = errors.New("question too long")

	// ErrQuotaExceeded is returned when the user has spent their
	// per-document question allowance for their tier.
	ErrQuotaExceeded = errors.New("question quota exceeded for this document")

	// ErrEmptyUpload is returned when an upload carries no file bytes.
	ErrEmptyUpload = errors.New("uploaded file is empty")

	// ErrUnsupportedFile is returned when an upload is not a PDF.
	ErrUnsupportedFile = errors.New("only PDF uploads are supported")

	// ErrUserNotFound indicates that no account row exists for the user,
	// typically when resolving a billing customer reference.
	ErrUserNotFound = errors.New("user not found")

	// ErrUploadQuotaExceeded is returned when the user already owns as many
	// documents as their tier allows.
	ErrUploadQuotaExceeded = errors.New("document limit reached for this tier")

	// ErrEmptyCustomerID is returned when a billing-customer link request
	// carries no customer id.
	ErrEmptyCustomerID = errors.New("billing customer id is empty")

	// ErrCustomerClaimed is returned when the billing customer id is already
	// linked to a different user account.
	ErrCustomerClaimed = errors.New("billing customer already linked to another account")
)
