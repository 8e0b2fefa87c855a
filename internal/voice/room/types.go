package room

import (
	"errors"
	"fmt"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
	"github.com/louisbranch/duetstage/internal/voice/domain"
	"github.com/louisbranch/duetstage/internal/voice/media"
	"github.com/louisbranch/duetstage/internal/voice/payment"
)

// InitParams describes a room to create. Amounts are base-unit decimal
// strings; AccessWindowMinutes defaults when zero.
type InitParams struct {
	RoomID              string
	HostWallet          string
	GuestWallet         string
	PayTo               string
	Network             string
	Asset               string
	LiveAmount          string
	ReplayAmount        string
	AccessWindowMinutes int64
	ReplayMode          domain.ReplayMode
	RecordingMode       string
	Visibility          string
	Title               string
	RoomKind            string
}

// InitResult reports the created (or already existing) room.
type InitResult struct {
	RoomID    string
	ChannelID string
	Status    domain.RoomStatus
	Created   bool
}

// StartResult carries the host's one-time bridge ticket. The ticket is empty
// on an idempotent replay while already live; credentials are never rotated
// by replays.
type StartResult struct {
	BridgeTicket  string
	AlreadyLive   bool
	RecordingMode string
	Credential    media.Credential
}

// GuestAcceptResult reports the bound guest seat.
type GuestAcceptResult struct {
	GuestWallet     string
	AcceptedAt      int64
	AlreadyAccepted bool
}

// GuestStartResult carries the guest's one-time bridge ticket.
type GuestStartResult struct {
	BridgeTicket   string
	AlreadyStarted bool
	Credential     media.Credential
}

// GuestRemoveResult reports whether a guest seat was actually cleared.
type GuestRemoveResult struct {
	Removed bool
}

// BridgeTokenResult is a fresh media credential for an authenticated seat.
type BridgeTokenResult struct {
	Seat       domain.Seat
	Credential media.Credential
}

// HeartbeatParams is one seat's self-reported broadcast state.
type HeartbeatParams struct {
	Ticket      string
	Status      string
	Mode        string
	AudioActive bool
	VideoActive bool
}

// HeartbeatResult echoes the derived aggregate view after the update.
type HeartbeatResult struct {
	Seat domain.Seat
	View domain.BroadcastView
}

// StartSegmentParams opens a new economic segment. Empty pricing fields
// inherit from the segment being replaced.
type StartSegmentParams struct {
	PayTo        string
	LiveAmount   string
	ReplayAmount string
	Rights       *domain.SegmentRights
	SongID       string
}

// StartSegmentResult is the newly current segment.
type StartSegmentResult struct {
	Segment domain.Segment
}

// Receipt is the settlement artifact returned alongside a granted access.
// Idempotent replays of an already-consumed claim return the original expiry.
type Receipt struct {
	Settled       bool                   `json:"settled"`
	Idempotent    bool                   `json:"idempotent"`
	Kind          domain.EntitlementKind `json:"kind"`
	SegmentID     string                 `json:"segment_id"`
	ExpiresAt     int64                  `json:"expires_at"`
	FacilitatorID string                 `json:"facilitator_id,omitempty"`
	TxReference   string                 `json:"tx_reference,omitempty"`
}

// EnterResult grants viewer ingress. ExpiresAt is the entitlement expiry, or
// the ephemeral window end for anonymous viewers.
type EnterResult struct {
	Credential media.Credential
	ExpiresAt  int64
	View       domain.BroadcastView
	Receipt    *Receipt
}

// ReplayAccessResult is either an external locator (load-gated rooms) or a
// one-time grant token (worker-gated rooms).
type ReplayAccessResult struct {
	Mode       domain.ReplayMode
	URL        string
	GrantToken string
	ExpiresAt  int64
	Receipt    *Receipt
}

// ReplaySourceResult is the redeemed replay media locator.
type ReplaySourceResult struct {
	MediaURL string
}

// EndResult reports the terminal transition.
type EndResult struct {
	EndedAt       int64
	GraceDeadline int64
	AlreadyEnded  bool
}

// PublicInfo is the unauthenticated view of a public room.
type PublicInfo struct {
	RoomID       string               `json:"room_id"`
	Title        string               `json:"title,omitempty"`
	RoomKind     string               `json:"room_kind,omitempty"`
	Status       domain.RoomStatus    `json:"status"`
	Broadcast    domain.BroadcastView `json:"broadcast"`
	Network      string               `json:"network"`
	Asset        string               `json:"asset"`
	LiveAmount   string               `json:"live_amount"`
	ReplayAmount string               `json:"replay_amount,omitempty"`
	HasGuest     bool                 `json:"has_guest"`
	HasRecording bool                 `json:"has_recording"`
	ReplayMode   domain.ReplayMode    `json:"replay_mode"`
}

// ChallengeError is a payment challenge. The HTTP layer renders it as a 402
// response carrying the accepts list; every other transport error stays a
// plain coded error.
type ChallengeError struct {
	Code    apperrors.Code
	Reason  string
	Accepts []payment.Requirement
}

func (e *ChallengeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("payment required: %s", e.Reason)
	}
	return "payment required"
}

// AsChallenge extracts a payment challenge from an error chain.
func AsChallenge(err error) (*ChallengeError, bool) {
	var challenge *ChallengeError
	if errors.As(err, &challenge) {
		return challenge, true
	}
	return nil, false
}
