package domain

import "time"

// Seat-reported broadcast statuses.
const (
	SeatLive    = "live"
	SeatStopped = "stopped"
	SeatIdle    = "idle"
)

// ModeMulti is the aggregate mode reported when both seats are live with
// different modes.
const ModeMulti = "multi"

// AudienceMediaMode tells viewers how to receive media.
type AudienceMediaMode string

const (
	// AudienceDirect means at least one live seat is sending video and
	// viewers subscribe to the broadcaster directly.
	AudienceDirect AudienceMediaMode = "direct"
	// AudienceBridge is the indirect default: audio is relayed through the
	// bridge.
	AudienceBridge AudienceMediaMode = "bridge"
)

// SeatState is one seat's self-reported broadcast state plus bookkeeping.
type SeatState struct {
	Status      string `json:"status,omitempty"` // live | stopped | "" (never reported)
	Mode        string `json:"mode,omitempty"`
	AudioActive bool   `json:"audio_active,omitempty"`
	VideoActive bool   `json:"video_active,omitempty"`
	HeartbeatAt int64  `json:"heartbeat_at,omitempty"`
	StartedAt   int64  `json:"started_at,omitempty"`
}

// Online reports whether the seat is live and its heartbeat is fresh.
func (s SeatState) Online(now time.Time) bool {
	if s.Status != SeatLive || s.HeartbeatAt == 0 {
		return false
	}
	return now.Unix()-s.HeartbeatAt <= int64(HeartbeatTimeout/time.Second)
}

// effective collapses a seat's reported status and heartbeat freshness into
// live, stopped, or idle. A live seat gone silent counts as stopped.
func (s SeatState) effective(now time.Time) string {
	switch s.Status {
	case SeatLive:
		if s.Online(now) {
			return SeatLive
		}
		return SeatStopped
	case SeatStopped:
		return SeatStopped
	default:
		return SeatIdle
	}
}

// BroadcastView is the derived aggregate broadcast state. It is recomputed
// from the two seats on every read and never stored.
type BroadcastView struct {
	State             string            `json:"state"` // live | stopped | idle
	Mode              string            `json:"mode,omitempty"`
	AudienceMediaMode AudienceMediaMode `json:"audience_media_mode"`
	HostOnline        bool              `json:"host_online"`
	GuestOnline       bool              `json:"guest_online"`
	HeartbeatAt       int64             `json:"heartbeat_at,omitempty"`
}

// DeriveBroadcast computes the aggregate view of both seats at the given time.
func (m *RoomMeta) DeriveBroadcast(now time.Time) BroadcastView {
	view := BroadcastView{
		HostOnline:  m.Host.Online(now),
		GuestOnline: m.Guest.Online(now),
	}
	if m.Host.HeartbeatAt > view.HeartbeatAt {
		view.HeartbeatAt = m.Host.HeartbeatAt
	}
	if m.Guest.HeartbeatAt > view.HeartbeatAt {
		view.HeartbeatAt = m.Guest.HeartbeatAt
	}

	host := m.Host.effective(now)
	guest := m.Guest.effective(now)

	switch {
	case host == SeatLive || guest == SeatLive:
		view.State = SeatLive
	case host == SeatStopped || guest == SeatStopped || m.Status == RoomEnded:
		view.State = SeatStopped
	default:
		view.State = SeatIdle
	}

	view.Mode = aggregateMode(m.Host, m.Guest, host, guest)

	view.AudienceMediaMode = AudienceBridge
	if (host == SeatLive && m.Host.VideoActive) || (guest == SeatLive && m.Guest.VideoActive) {
		view.AudienceMediaMode = AudienceDirect
	}
	return view
}

func aggregateMode(host, guest SeatState, hostState, guestState string) string {
	switch {
	case hostState == SeatLive && guestState == SeatLive:
		if host.Mode == guest.Mode {
			return host.Mode
		}
		return ModeMulti
	case hostState == SeatLive:
		return host.Mode
	case guestState == SeatLive:
		return guest.Mode
	case hostState == SeatStopped:
		return host.Mode
	case guestState == SeatStopped:
		return guest.Mode
	default:
		return ""
	}
}
