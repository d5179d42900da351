// Package billing verifies and applies subscription lifecycle events from
// the payment provider.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// Event types the gateway reacts to. Anything else is acknowledged as a
// no-op.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventSubscriptionUpdated = "customer.subscription.updated"
)

// Well-known subscription states.
const (
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
	StatusTrialing = "trialing"
)

// Event is the provider's signed webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object EventObject `json:"object"`
	} `json:"data"`
}

// EventObject carries the union of checkout-session and subscription
// fields the handler reads.
type EventObject struct {
	// Checkout session
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	Subscription      string            `json:"subscription"`
	Customer          string            `json:"customer"`

	// Subscription
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Subject returns the subject a checkout session was started for.
func (o EventObject) Subject() string {
	if o.ClientReferenceID != "" {
		return o.ClientReferenceID
	}
	return o.Metadata["userId"]
}

// ParseEvent decodes a verified payload into an event.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("malformed event payload: missing type")
	}
	return &ev, nil
}

// Entitlements is the write surface the processor reconciles events into.
type Entitlements interface {
	Activate(ctx context.Context, subject, subscriptionRef, customerRef string) error
	DeactivateBySubscription(ctx context.Context, subscriptionRef string) (string, error)
}

// Processor reconciles billing events into entitlement state.
type Processor struct {
	entitlements Entitlements
}

func NewProcessor(entitlements Entitlements) *Processor {
	return &Processor{entitlements: entitlements}
}

// Apply runs the free/pro state machine for one event. Replays are
// idempotent: reapplying a started event rewrites the same state, and
// deactivating an unknown or already-free subscription is a no-op.
func (p *Processor) Apply(ctx context.Context, ev *Event) error {
	switch ev.Type {
	case EventCheckoutCompleted:
		subject := ev.Data.Object.Subject()
		if subject == "" {
			log.Printf("billing: checkout completed without subject reference, ignoring")
			return nil
		}
		if err := p.entitlements.Activate(ctx, subject, ev.Data.Object.Subscription, ev.Data.Object.Customer); err != nil {
			return fmt.Errorf("activate %s: %w", subject, err)
		}
		log.Printf("billing: subject %s upgraded to pro", subject)
		return nil

	case EventSubscriptionDeleted:
		subject, err := p.entitlements.DeactivateBySubscription(ctx, ev.Data.Object.ID)
		if err != nil {
			return fmt.Errorf("deactivate subscription %s: %w", ev.Data.Object.ID, err)
		}
		if subject != "" {
			log.Printf("billing: subject %s subscription cancelled", subject)
		}
		return nil

	case EventSubscriptionUpdated:
		if ev.Data.Object.Status == StatusActive {
			return nil
		}
		subject, err := p.entitlements.DeactivateBySubscription(ctx, ev.Data.Object.ID)
		if err != nil {
			return fmt.Errorf("deactivate subscription %s: %w", ev.Data.Object.ID, err)
		}
		if subject != "" {
			log.Printf("billing: subject %s subscription inactive (%s)", subject, ev.Data.Object.Status)
		}
		return nil

	default:
		log.Printf("billing: unhandled event type %s", ev.Type)
		return nil
	}
}
