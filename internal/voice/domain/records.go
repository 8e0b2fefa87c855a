package domain

import "time"

// Entitlement is one wallet's paid-for access windows in one room.
// Records are created lazily on first grant and never deleted.
type Entitlement struct {
	RoomID          string `json:"room_id"`
	Wallet          string `json:"wallet"`
	LiveExpiresAt   int64  `json:"live_expires_at,omitempty"`
	ReplayExpiresAt int64  `json:"replay_expires_at,omitempty"`
}

// ExpiresAt returns the stored expiry for the given kind.
func (e *Entitlement) ExpiresAt(kind EntitlementKind) int64 {
	if kind == KindReplay {
		return e.ReplayExpiresAt
	}
	return e.LiveExpiresAt
}

// Active reports whether the entitlement covers the given kind at now.
func (e *Entitlement) Active(kind EntitlementKind, now time.Time) bool {
	return e.ExpiresAt(kind) > now.Unix()
}

// Extend grows the expiry for the given kind by window and returns the new
// expiry. Extension is monotonic: the effective base is the later of the
// current expiry and now, so a grant never shortens access.
func (e *Entitlement) Extend(kind EntitlementKind, now time.Time, window time.Duration) int64 {
	base := now.Unix()
	if current := e.ExpiresAt(kind); current > base {
		base = current
	}
	expiry := base + int64(window/time.Second)
	if kind == KindReplay {
		e.ReplayExpiresAt = expiry
	} else {
		e.LiveExpiresAt = expiry
	}
	return expiry
}

// SettleMarker records the single permitted consumption of one payment claim.
// It is keyed by the claim hash and pruned after MarkerRetention.
type SettleMarker struct {
	ClaimHash     string          `json:"claim_hash"`
	RoomID        string          `json:"room_id"`
	Wallet        string          `json:"wallet,omitempty"` // empty for anonymous viewers
	Kind          EntitlementKind `json:"kind"`
	SegmentID     string          `json:"segment_id"`
	Amount        string          `json:"amount"`
	PayTo         string          `json:"pay_to"`
	ExpiresAt     int64           `json:"expires_at"`
	SettledAt     int64           `json:"settled_at"`
	FacilitatorID string          `json:"facilitator_id,omitempty"`
	TxReference   string          `json:"tx_reference,omitempty"`
}

// Stale reports whether the marker's own grant has already lapsed. A stale
// claim must not be replayed to extend access again.
func (m *SettleMarker) Stale(now time.Time) bool {
	return m.ExpiresAt != 0 && m.ExpiresAt <= now.Unix()
}

// ReplayGrant is a one-time short-lived token record mapping to the replay
// media locator. Deleted on first successful read.
type ReplayGrant struct {
	TokenHash string `json:"token_hash"`
	RoomID    string `json:"room_id"`
	Wallet    string `json:"wallet,omitempty"`
	MediaURL  string `json:"media_url"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// Expired reports whether the grant is past its TTL.
func (g *ReplayGrant) Expired(now time.Time) bool {
	return g.ExpiresAt <= now.Unix()
}
