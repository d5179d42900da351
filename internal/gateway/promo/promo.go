// Package promo grants one-time bonus fact-checks against a fixed code
// table.
package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// redemptionTTL keeps the redemption record around long enough to be
// effectively permanent.
const redemptionTTL = 365 * 24 * time.Hour

// Valid promo codes and their bonus checks
var codes = map[string]int64{
	"FRIEND5":     5,
	"BETA10":      10,
	"EARLYBIRD":   5,
	"PRODUCTHUNT": 50,
}

var (
	ErrInvalidCode     = errors.New("invalid promo code")
	ErrAlreadyRedeemed = errors.New("promo code already used")
)

// Store is the subset of store operations redemption needs.
type Store interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

// Credit returns the bonus amount a code grants, and whether it exists.
func Credit(code string) (int64, bool) {
	amount, ok := codes[normalize(code)]
	return amount, ok
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Redeem grants a code's bonus checks to a subject exactly once and
// returns the new bonus balance. The redemption record write is the
// linearization point: only the caller that creates it grants credit, so
// a duplicate attempt after a partial failure can never double-grant.
func (s *Service) Redeem(ctx context.Context, subject, code string) (int64, error) {
	normalized := normalize(code)
	amount, ok := codes[normalized]
	if !ok {
		return 0, ErrInvalidCode
	}

	created, err := s.store.SetNX(ctx, "promo:"+subject+":"+normalized, "1", redemptionTTL)
	if err != nil {
		return 0, fmt.Errorf("write redemption record: %w", err)
	}
	if !created {
		return 0, ErrAlreadyRedeemed
	}

	balance, err := s.store.IncrBy(ctx, "bonus:"+subject, amount)
	if err != nil {
		return 0, fmt.Errorf("grant bonus credit: %w", err)
	}
	return balance, nil
}
