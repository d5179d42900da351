// Package ledger enforces per-subject and per-network daily quotas, bonus
// credits, and the global daily-spend circuit breaker. All state lives in
// the shared store; every counter write goes through an atomic
// increment primitive, never a read-modify-write pair.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/signalnoise/factgate/internal/gateway/identity"
)

const windowTTL = 24 * time.Hour

// Store is the subset of store operations the ledger needs.
type Store interface {
	GetInt(ctx context.Context, key string) (int64, error)
	GetFloat(ctx context.Context, key string) (float64, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	IncrByFloatWithTTL(ctx context.Context, key string, amount float64, ttl time.Duration) (float64, error)
	DecrIfPositive(ctx context.Context, key string) (int64, bool, error)
}

// EntitlementReader reports whether a subject bypasses quota counting.
type EntitlementReader interface {
	Unrestricted(ctx context.Context, subject string) (bool, error)
}

// Limits holds the fixed quota and budget constants.
type Limits struct {
	SubjectDaily   int
	NetworkDaily   int
	DailyBudgetUSD float64
	CostPerTurnUSD float64
}

// DenyReason is a machine-readable reason for a denied request.
type DenyReason string

const (
	ReasonSubjectLimit   DenyReason = "subject_limit"
	ReasonNetworkLimit   DenyReason = "network_limit"
	ReasonBudgetExceeded DenyReason = "budget_exceeded"
)

// Decision is the outcome of a quota check. A Decision with Allowed set
// must be passed back to Commit after the downstream analysis succeeds.
type Decision struct {
	Allowed        bool
	Reason         DenyReason
	Entitled       bool
	BonusUsed      bool
	BonusRemaining int64
	RetryAfter     time.Duration
}

type Ledger struct {
	store        Store
	entitlements EntitlementReader
	limits       Limits
	now          func() time.Time
}

func New(store Store, entitlements EntitlementReader, limits Limits) *Ledger {
	return &Ledger{
		store:        store,
		entitlements: entitlements,
		limits:       limits,
		now:          time.Now,
	}
}

func usageKey(subject string) string { return "usage:" + subject }

func networkKey(network string) string { return "usage:ip:" + network }

func bonusKey(subject string) string { return "bonus:" + subject }

func (l *Ledger) costKey() string { return "cost:daily:" + l.now().Format("2006-01-02") }

func (l *Ledger) untilEndOfDay() time.Duration {
	now := l.now()
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()).Sub(now)
}

// CheckAndReserve decides whether a request may proceed. The budget
// circuit breaker is checked first and fires even for entitled subjects:
// it caps worst-case spend regardless of who is asking. Bonus credits are
// consumed here, at most one per request, only when a limit would
// otherwise deny.
func (l *Ledger) CheckAndReserve(ctx context.Context, id identity.Identity) (Decision, error) {
	costToday, err := l.store.GetFloat(ctx, l.costKey())
	if err != nil {
		return Decision{}, fmt.Errorf("read cost ledger: %w", err)
	}
	if costToday > l.limits.DailyBudgetUSD {
		return Decision{
			Reason:     ReasonBudgetExceeded,
			RetryAfter: l.untilEndOfDay(),
		}, nil
	}

	unrestricted, err := l.entitlements.Unrestricted(ctx, id.Subject)
	if err != nil {
		return Decision{}, fmt.Errorf("read entitlement: %w", err)
	}
	if unrestricted {
		return Decision{Allowed: true, Entitled: true}, nil
	}

	usage, err := l.store.GetInt(ctx, usageKey(id.Subject))
	if err != nil {
		return Decision{}, fmt.Errorf("read subject usage: %w", err)
	}
	netUsage, err := l.store.GetInt(ctx, networkKey(id.Network))
	if err != nil {
		return Decision{}, fmt.Errorf("read network usage: %w", err)
	}

	overSubject := usage >= int64(l.limits.SubjectDaily)
	overNetwork := netUsage >= int64(l.limits.NetworkDaily)
	if !overSubject && !overNetwork {
		return Decision{Allowed: true}, nil
	}

	remaining, used, err := l.store.DecrIfPositive(ctx, bonusKey(id.Subject))
	if err != nil {
		return Decision{}, fmt.Errorf("consume bonus credit: %w", err)
	}
	if used {
		return Decision{Allowed: true, BonusUsed: true, BonusRemaining: remaining}, nil
	}

	reason := ReasonNetworkLimit
	if overSubject {
		reason = ReasonSubjectLimit
	}
	return Decision{Reason: reason, RetryAfter: windowTTL}, nil
}

// Commit records a completed analysis: usage counters for non-entitled
// subjects (created with a 24h expiry on first increment) and the spend
// estimate for the day. Never called on a denial or a failed upstream
// call.
func (l *Ledger) Commit(ctx context.Context, id identity.Identity, decision Decision, turns int) error {
	if turns < 1 {
		turns = 1
	}

	if !decision.Entitled {
		if _, err := l.store.IncrWithTTL(ctx, usageKey(id.Subject), windowTTL); err != nil {
			return fmt.Errorf("increment subject usage: %w", err)
		}
		if _, err := l.store.IncrWithTTL(ctx, networkKey(id.Network), windowTTL); err != nil {
			return fmt.Errorf("increment network usage: %w", err)
		}
	}

	cost := float64(turns) * l.limits.CostPerTurnUSD
	if _, err := l.store.IncrByFloatWithTTL(ctx, l.costKey(), cost, l.untilEndOfDay()); err != nil {
		return fmt.Errorf("add to cost ledger: %w", err)
	}
	return nil
}
