// Package domain holds the room authority's state types and the pure rules
// that govern them. All mutation happens through the room service; nothing in
// this package touches storage or the network.
package domain

import (
	"time"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
)

// RoomStatus is the room lifecycle state. It only moves forward.
type RoomStatus string

const (
	RoomCreated RoomStatus = "created"
	RoomLive    RoomStatus = "live"
	RoomEnded   RoomStatus = "ended"
)

// ReplayMode selects how replay access is gated.
type ReplayMode string

const (
	// ReplayLoadGated delegates gating to the external storage layer via a
	// pre-signed payment URL.
	ReplayLoadGated ReplayMode = "load_gated"
	// ReplayWorkerGated runs the payment flow here and issues one-time grants.
	ReplayWorkerGated ReplayMode = "worker_gated"
)

// Seat identifies one of the two broadcaster positions.
type Seat string

const (
	SeatHost  Seat = "host"
	SeatGuest Seat = "guest"
)

// EntitlementKind distinguishes the two paid access windows.
type EntitlementKind string

const (
	KindLive   EntitlementKind = "live"
	KindReplay EntitlementKind = "replay"
)

// Fixed operational windows. These are deliberately constants, not config:
// clients bake matching assumptions into retry and heartbeat cadence.
const (
	HeartbeatTimeout = 75 * time.Second
	EndGraceWindow   = 15 * time.Minute
	ReplayGrantTTL   = 10 * time.Minute
	MarkerRetention  = 30 * 24 * time.Hour
	PruneInterval    = time.Hour
	MaxSegments      = 200
)

// SegmentPricing prices one segment. Amounts are base-unit decimal strings.
type SegmentPricing struct {
	LiveAmount   string `json:"live_amount"`
	ReplayAmount string `json:"replay_amount,omitempty"`
}

// SegmentRights describes the rights position of a segment's material.
type SegmentRights struct {
	Kind           string   `json:"kind"` // original | derivative
	SourceIDs      []string `json:"source_ids,omitempty"`
	UpstreamBPS    uint32   `json:"upstream_bps,omitempty"`
	UpstreamPayout string   `json:"upstream_payout,omitempty"`
}

// Segment is an economically distinct slice of the room timeline.
type Segment struct {
	ID        string         `json:"id"`
	StartedAt int64          `json:"started_at"`
	PayTo     string         `json:"pay_to"`
	Pricing   SegmentPricing `json:"pricing"`
	Rights    *SegmentRights `json:"rights,omitempty"`
	SongID    string         `json:"song_id,omitempty"`
}

// SegmentLock marks a segment as having received its first settlement.
// A locked segment's pricing and payee are immutable.
type SegmentLock struct {
	SegmentID   string `json:"segment_id"`
	LockedAt    int64  `json:"locked_at"`
	TxReference string `json:"tx_reference,omitempty"`
}

// Recording describes the finalized replay media for an ended room.
type Recording struct {
	PlaybackURL string `json:"playback_url"`
	DownloadURL string `json:"download_url,omitempty"`
	CompletedAt int64  `json:"completed_at"`
}

// RoomMeta is the single authoritative record for one room.
type RoomMeta struct {
	SchemaVersion int `json:"schema_version"`

	ID        string     `json:"id"`
	ChannelID string     `json:"channel_id"`
	Status    RoomStatus `json:"status"`

	Title      string `json:"title,omitempty"`
	RoomKind   string `json:"room_kind,omitempty"`
	Visibility string `json:"visibility,omitempty"`

	HostWallet      string `json:"host_wallet"`
	GuestWallet     string `json:"guest_wallet,omitempty"`
	GuestAcceptedAt int64  `json:"guest_accepted_at,omitempty"`

	PayTo               string `json:"pay_to"`
	Network             string `json:"network"`
	Asset               string `json:"asset"`
	LiveAmount          string `json:"live_amount"`
	ReplayAmount        string `json:"replay_amount"`
	AccessWindowSeconds int64  `json:"access_window_seconds"`

	ReplayMode    ReplayMode `json:"replay_mode"`
	RecordingMode string     `json:"recording_mode"`

	CreatedAt int64 `json:"created_at"`
	LiveAt    int64 `json:"live_at,omitempty"`
	EndedAt   int64 `json:"ended_at,omitempty"`

	Host  SeatState `json:"host_broadcast"`
	Guest SeatState `json:"guest_broadcast"`

	// Only ticket hashes are persisted; the tickets themselves are returned
	// once and never stored.
	HostTicketHash         string `json:"host_ticket_hash,omitempty"`
	GuestTicketHash        string `json:"guest_ticket_hash,omitempty"`
	GuestRevokedTicketHash string `json:"guest_revoked_ticket_hash,omitempty"`

	HostIngressUID  uint32 `json:"host_ingress_uid,omitempty"`
	GuestIngressUID uint32 `json:"guest_ingress_uid,omitempty"`

	Segments         []Segment              `json:"segments"`
	CurrentSegmentID string                 `json:"current_segment_id"`
	SegmentLocks     map[string]SegmentLock `json:"segment_locks,omitempty"`

	Recording *Recording `json:"recording,omitempty"`

	LastPrunedAt int64 `json:"last_pruned_at,omitempty"`
}

// AccessWindow returns the entitlement extension window.
func (m *RoomMeta) AccessWindow() time.Duration {
	return time.Duration(m.AccessWindowSeconds) * time.Second
}

// WithinEndGrace reports whether the post-end grace window is still open.
func (m *RoomMeta) WithinEndGrace(now time.Time) bool {
	if m.Status != RoomEnded || m.EndedAt == 0 {
		return false
	}
	return now.Unix() <= m.EndedAt+int64(EndGraceWindow/time.Second)
}

// CurrentSegment returns the presently-active segment.
func (m *RoomMeta) CurrentSegment() (Segment, bool) {
	return m.FindSegment(m.CurrentSegmentID)
}

// FindSegment looks a segment up by id.
func (m *RoomMeta) FindSegment(id string) (Segment, bool) {
	for _, seg := range m.Segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return Segment{}, false
}

// AppendSegment appends a new segment and makes it current. Segments are
// append-only and capped.
func (m *RoomMeta) AppendSegment(seg Segment) error {
	if len(m.Segments) >= MaxSegments {
		return apperrors.New(apperrors.CodeMaxSegmentsReached, "segment cap reached")
	}
	m.Segments = append(m.Segments, seg)
	m.CurrentSegmentID = seg.ID
	return nil
}

// SegmentLocked reports whether a segment has received a settlement.
func (m *RoomMeta) SegmentLocked(id string) bool {
	_, ok := m.SegmentLocks[id]
	return ok
}

// LockSegment records the first settlement against a segment. Later calls for
// the same segment are no-ops so the original lock metadata is preserved.
func (m *RoomMeta) LockSegment(id string, now time.Time, txReference string) {
	if m.SegmentLocked(id) {
		return
	}
	if m.SegmentLocks == nil {
		m.SegmentLocks = make(map[string]SegmentLock)
	}
	m.SegmentLocks[id] = SegmentLock{
		SegmentID:   id,
		LockedAt:    now.Unix(),
		TxReference: txReference,
	}
}

// PriceFor returns the amount and payee a viewer owes for the given kind
// against the given segment. Replay pricing falls back to the room-level
// replay amount when the segment does not carry its own.
func (m *RoomMeta) PriceFor(kind EntitlementKind, seg Segment) (amount, payTo string) {
	payTo = seg.PayTo
	if payTo == "" {
		payTo = m.PayTo
	}
	switch kind {
	case KindReplay:
		amount = seg.Pricing.ReplayAmount
		if amount == "" {
			amount = m.ReplayAmount
		}
	default:
		amount = seg.Pricing.LiveAmount
		if amount == "" {
			amount = m.LiveAmount
		}
	}
	return amount, payTo
}
