// Package entitlement owns the per-subject "unrestricted" flag and its
// billing references. Only the billing-event handler mutates it; the
// ledger and orchestrator read it.
package entitlement

import (
	"context"
	"fmt"
	"time"
)

// proTTL bounds a paid flag to one billing year; an active subscription
// refreshes it on the next started event.
const proTTL = 365 * 24 * time.Hour

// Store is the subset of store operations entitlement needs. Get reads
// missing keys as empty.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

func proKey(subject string) string          { return "user:" + subject + ":pro" }
func subscriptionKey(subject string) string { return "user:" + subject + ":subscription_id" }
func customerKey(subject string) string     { return "user:" + subject + ":customer_id" }

// indexKey is the secondary index from subscription reference back to
// subject, maintained alongside the forward write so cancellation never
// scans the keyspace.
func indexKey(subscriptionRef string) string { return "sub:" + subscriptionRef + ":user" }

// Unrestricted reports whether a subject bypasses quota counting.
func (s *Service) Unrestricted(ctx context.Context, subject string) (bool, error) {
	val, err := s.store.Get(ctx, proKey(subject))
	if err != nil {
		return false, fmt.Errorf("read pro flag: %w", err)
	}
	return val == "true", nil
}

// Activate marks a subject unrestricted and records its billing
// references. Replaying the same event rewrites identical values, so the
// operation is idempotent.
func (s *Service) Activate(ctx context.Context, subject, subscriptionRef, customerRef string) error {
	if err := s.store.Set(ctx, proKey(subject), "true", proTTL); err != nil {
		return fmt.Errorf("set pro flag: %w", err)
	}
	if err := s.store.Set(ctx, subscriptionKey(subject), subscriptionRef, 0); err != nil {
		return fmt.Errorf("set subscription ref: %w", err)
	}
	if err := s.store.Set(ctx, customerKey(subject), customerRef, 0); err != nil {
		return fmt.Errorf("set customer ref: %w", err)
	}
	if err := s.store.Set(ctx, indexKey(subscriptionRef), subject, 0); err != nil {
		return fmt.Errorf("set subscription index: %w", err)
	}
	return nil
}

// DeactivateBySubscription clears the unrestricted flag for the subject
// that owns the given subscription reference. Returns the subject, or
// empty when the reference is unknown (a no-op).
func (s *Service) DeactivateBySubscription(ctx context.Context, subscriptionRef string) (string, error) {
	subject, err := s.store.Get(ctx, indexKey(subscriptionRef))
	if err != nil {
		return "", fmt.Errorf("resolve subscription ref: %w", err)
	}
	if subject == "" {
		return "", nil
	}
	if err := s.store.Del(ctx, proKey(subject)); err != nil {
		return "", fmt.Errorf("clear pro flag: %w", err)
	}
	return subject, nil
}

// SubscriptionRef returns the recorded subscription reference for a
// subject, empty when none.
func (s *Service) SubscriptionRef(ctx context.Context, subject string) (string, error) {
	return s.store.Get(ctx, subscriptionKey(subject))
}

// CustomerRef returns the recorded customer reference for a subject,
// empty when none.
func (s *Service) CustomerRef(ctx context.Context, subject string) (string, error) {
	return s.store.Get(ctx, customerKey(subject))
}
