// Package identity maps an inbound request to the pair of quota keys:
// the client-asserted subject and the coarser network identity.
package identity

import (
	"errors"
	"net"
	"net/http"
	"strings"
)

// ErrMissingSubject is returned when the identity header is absent.
var ErrMissingSubject = errors.New("missing fingerprint ID")

// Identity identifies a requester for quota and entitlement purposes.
// Subject is opaque and client-asserted, not cryptographically verified.
type Identity struct {
	Subject string
	Network string
}

// Resolve extracts the identity pair from request headers.
func Resolve(r *http.Request) (Identity, error) {
	subject := strings.TrimSpace(r.Header.Get("X-Fingerprint-ID"))
	if subject == "" {
		return Identity{}, ErrMissingSubject
	}
	return Identity{Subject: subject, Network: network(r)}, nil
}

// network derives the network identity from proxy headers, falling back
// to the socket address.
func network(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
