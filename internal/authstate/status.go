// Package authstate models the per-binding authorization lifecycle:
// NOT_AUTHENTICATED → AUTHENTICATED ⇄ EXPIRED. Stored status is persisted on
// the binding; the effective status for dispatch is always recomputed from
// the stored status and the clock, so "locally expired but not yet
// refreshed" is decided in exactly one place.
package authstate

import "time"

// Status is the stored authorization state of a binding.
type Status string

const (
	// StatusNotAuthenticated means no credential was ever established, or
	// the user explicitly disconnected (which also purges secrets).
	StatusNotAuthenticated Status = "not_authenticated"
	// StatusAuthenticated means a valid credential is present.
	StatusAuthenticated Status = "authenticated"
	// StatusExpired means a credential exists but is past token_expires_at
	// or was rejected by the provider.
	StatusExpired Status = "expired"
)

// ConnectionStatus tracks whether the integration is wired to the agent at
// all, independent of credential validity.
type ConnectionStatus string

const (
	ConnectionNotConnected ConnectionStatus = "not_connected"
	ConnectionConnected    ConnectionStatus = "connected"
)

// Resolve computes the effective status from stored state and the current
// time. Pure: safe to call from dispatch and display contexts alike without
// mutating stored state. A stored AUTHENTICATED with token_expires_at in the
// past resolves to EXPIRED even before any refresh has run.
func Resolve(stored Status, tokenExpiresAt *time.Time, now time.Time) Status {
	if stored == StatusAuthenticated && tokenExpiresAt != nil && !now.Before(*tokenExpiresAt) {
		return StatusExpired
	}
	return stored
}

// DisplayStatus is the refinement surfaced to humans. It collapses to the
// three core states for dispatch purposes.
type DisplayStatus string

const (
	DisplayNotConnected    DisplayStatus = "not_connected"
	DisplayConnectedNoAuth DisplayStatus = "connected_no_auth"
	DisplayAuthenticated   DisplayStatus = "authenticated"
	DisplayAuthInvalid     DisplayStatus = "connected_auth_invalid"
)

// ForDisplay maps connection and authorization state onto the refined
// display status. Expiry is computed live from tokenExpiresAt.
func ForDisplay(conn ConnectionStatus, stored Status, tokenExpiresAt *time.Time, now time.Time) DisplayStatus {
	if conn != ConnectionConnected {
		return DisplayNotConnected
	}
	switch Resolve(stored, tokenExpiresAt, now) {
	case StatusAuthenticated:
		return DisplayAuthenticated
	case StatusExpired:
		return DisplayAuthInvalid
	default:
		return DisplayConnectedNoAuth
	}
}
