package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"gorm.io/gorm"
)

type fakeMembershipStore struct {
	err   error
	calls []membershipCall
}

type membershipCall struct {
	customer string
	active   bool
}

func (f *fakeMembershipStore) SetMembershipByCustomer(ctx context.Context, db *gorm.DB, customerID string, active bool) error {
	f.calls = append(f.calls, membershipCall{customer: customerID, active: active})
	return f.err
}

func signPayload(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newTestProcessor(store *fakeMembershipStore) *Processor {
	p := NewProcessor(nil, store, "whsec_test", 5*time.Minute)
	p.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return p
}

func TestProcess_CheckoutCompletedActivates(t *testing.T) {
	store := &fakeMembershipStore{}
	p := newTestProcessor(store)

	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"customer":"cus_1"}}}`)
	sig := signPayload("whsec_test", 1_700_000_000, payload)

	if err := p.Process(context.Background(), payload, sig); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(store.calls) != 1 || store.calls[0].customer != "cus_1" || !store.calls[0].active {
		t.Fatalf("activation not applied: %+v", store.calls)
	}
}

func TestProcess_PaymentSucceededActivates(t *testing.T) {
	store := &fakeMembershipStore{}
	p := newTestProcessor(store)

	payload := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"customer":"cus_2"}}}`)
	sig := signPayload("whsec_test", 1_700_000_000, payload)

	if err := p.Process(context.Background(), payload, sig); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(store.calls) != 1 || !store.calls[0].active {
		t.Fatalf("activation not applied: %+v", store.calls)
	}
}

func TestProcess_SubscriptionEndDeactivates(t *testing.T) {
	for _, typ := range []string{"customer.subscription.deleted", "subscription.canceled"} {
		store := &fakeMembershipStore{}
		p := newTestProcessor(store)

		payload := []byte(`{"type":"` + typ + `","data":{"object":{"customer":"cus_3"}}}`)
		sig := signPayload("whsec_test", 1_700_000_000, payload)

		if err := p.Process(context.Background(), payload, sig); err != nil {
			t.Fatalf("Process(%s): %v", typ, err)
		}
		if len(store.calls) != 1 || store.calls[0].active {
			t.Fatalf("%s: deactivation not applied: %+v", typ, store.calls)
		}
	}
}

func TestProcess_UnknownEventAckedWithoutStateChange(t *testing.T) {
	store := &fakeMembershipStore{}
	p := newTestProcessor(store)

	payload := []byte(`{"type":"invoice.finalized","data":{"object":{"customer":"cus_4"}}}`)
	sig := signPayload("whsec_test", 1_700_000_000, payload)

	if err := p.Process(context.Background(), payload, sig); err != nil {
		t.Fatalf("unknown events must return nil, got %v", err)
	}
	if len(store.calls) != 0 {
		t.Fatalf("unknown event changed state: %+v", store.calls)
	}
}

func TestProcess_BadSignatureRejected(t *testing.T) {
	store := &fakeMembershipStore{}
	p := newTestProcessor(store)

	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"customer":"cus_1"}}}`)
	sig := signPayload("wrong_secret", 1_700_000_000, payload)

	if err := p.Process(context.Background(), payload, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if len(store.calls) != 0 {
		t.Fatalf("state changed on bad signature")
	}
}

func TestProcess_TamperedPayloadRejected(t *testing.T) {
	store := &fakeMembershipStore{}
	p := newTestProcessor(store)

	original := []byte(`{"type":"checkout.session.completed","data":{"object":{"customer":"cus_1"}}}`)
	sig := signPayload("whsec_test", 1_700_000_000, original)
	tampered := []byte(`{"type":"checkout.session.completed","data":{"object":{"customer":"cus_evil"}}}`)

	if err := p.Process(context.Background(), tampered, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered payload, got %v", err)
	}
}

func TestProcess_StaleTimestampRejected(t *testing.T) {
	store := &fakeMembershipStore{}
	p := newTestProcessor(store)

	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"customer":"cus_1"}}}`)
	stale := int64(1_700_000_000 - 600) // ten minutes old, tolerance is five
	sig := signPayload("whsec_test", stale, payload)

	if err := p.Process(context.Background(), payload, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for stale timestamp, got %v", err)
	}
}

func TestProcess_FutureTimestampRejected(t *testing.T) {
	store := &fakeMembershipStore{}
	p := newTestProcessor(store)

	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"customer":"cus_1"}}}`)
	sig := signPayload("whsec_test", 1_700_000_000+600, payload)

	if err := p.Process(context.Background(), payload, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for future timestamp, got %v", err)
	}
}

func TestProcess_MalformedHeaderRejected(t *testing.T) {
	store := &fakeMembershipStore{}
	p := newTestProcessor(store)
	payload := []byte(`{}`)

	for _, header := range []string{"", "t=abc,v1=00", "v1=deadbeef", "t=1700000000", "garbage"} {
		if err := p.Process(context.Background(), payload, header); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("header %q: expected ErrInvalidSignature, got %v", header, err)
		}
	}
}

func TestProcess_MissingCustomer(t *testing.T) {
	store := &fakeMembershipStore{}
	p := newTestProcessor(store)

	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{}}}`)
	sig := signPayload("whsec_test", 1_700_000_000, payload)

	if err := p.Process(context.Background(), payload, sig); err == nil {
		t.Fatalf("expected error for missing customer")
	}
	if len(store.calls) != 0 {
		t.Fatalf("state changed without customer id")
	}
}

func TestProcess_UnknownCustomer(t *testing.T) {
	store := &fakeMembershipStore{err: gorm.ErrRecordNotFound}
	p := newTestProcessor(store)

	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"customer":"cus_ghost"}}}`)
	sig := signPayload("whsec_test", 1_700_000_000, payload)

	if err := p.Process(context.Background(), payload, sig); !errors.Is(err, ErrUnknownCustomer) {
		t.Fatalf("expected ErrUnknownCustomer, got %v", err)
	}
}

func TestProcess_MultipleSignaturesOneValid(t *testing.T) {
	store := &fakeMembershipStore{}
	p := newTestProcessor(store)

	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"customer":"cus_1"}}}`)
	valid := signPayload("whsec_test", 1_700_000_000, payload)
	// Provider key rotation sends several v1 entries; one match is enough.
	header := valid + ",v1=deadbeefdeadbeef"

	if err := p.Process(context.Background(), payload, header); err != nil {
		t.Fatalf("one valid signature should verify: %v", err)
	}
}

func TestNewProcessor_ToleranceDefault(t *testing.T) {
	p := NewProcessor(nil, &fakeMembershipStore{}, "s", 0)
	if p.Tolerance != 5*time.Minute {
		t.Fatalf("default tolerance wrong: %v", p.Tolerance)
	}
}

func TestVerify_EmptySecretRejectsEverything(t *testing.T) {
	p := NewProcessor(nil, &fakeMembershipStore{}, "", time.Minute)
	payload := []byte(`{}`)
	sig := signPayload("", 1, payload)
	if err := p.verify(payload, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("empty secret must reject, got %v", err)
	}
}
