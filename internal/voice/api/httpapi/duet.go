package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/louisbranch/duetstage/internal/voice/domain"
	"github.com/louisbranch/duetstage/internal/voice/media"
	"github.com/louisbranch/duetstage/internal/voice/room"
)

type createRoomRequest struct {
	RoomID              string            `json:"room_id,omitempty"`
	PayTo               string            `json:"pay_to"`
	GuestWallet         string            `json:"guest_wallet,omitempty"`
	Network             string            `json:"network"`
	Asset               string            `json:"asset"`
	LiveAmount          string            `json:"live_amount"`
	ReplayAmount        string            `json:"replay_amount,omitempty"`
	AccessWindowMinutes int64             `json:"access_window_minutes,omitempty"`
	ReplayMode          domain.ReplayMode `json:"replay_mode,omitempty"`
	RecordingMode       string            `json:"recording_mode,omitempty"`
	Visibility          string            `json:"visibility,omitempty"`
	Title               string            `json:"title,omitempty"`
	RoomKind            string            `json:"room_kind,omitempty"`
}

type createRoomResponse struct {
	RoomID    string            `json:"room_id"`
	ChannelID string            `json:"channel_id"`
	Status    domain.RoomStatus `json:"status"`
}

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	wallet, err := requireWallet(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req createRoomRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.rooms.Init(r.Context(), room.InitParams{
		RoomID:              req.RoomID,
		HostWallet:          wallet,
		GuestWallet:         req.GuestWallet,
		PayTo:               req.PayTo,
		Network:             req.Network,
		Asset:               req.Asset,
		LiveAmount:          req.LiveAmount,
		ReplayAmount:        req.ReplayAmount,
		AccessWindowMinutes: req.AccessWindowMinutes,
		ReplayMode:          req.ReplayMode,
		RecordingMode:       req.RecordingMode,
		Visibility:          req.Visibility,
		Title:               req.Title,
		RoomKind:            req.RoomKind,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, createRoomResponse{RoomID: result.RoomID, ChannelID: result.ChannelID, Status: result.Status})
}

func (h *Handler) publicInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.rooms.PublicInfo(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

type startRoomResponse struct {
	BridgeTicket  string           `json:"bridge_ticket,omitempty"`
	AlreadyLive   bool             `json:"already_live"`
	RecordingMode string           `json:"recording_mode,omitempty"`
	Credential    media.Credential `json:"credential"`
}

func (h *Handler) startRoom(w http.ResponseWriter, r *http.Request) {
	wallet, err := requireWallet(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.rooms.Start(r.Context(), r.PathValue("id"), wallet)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, startRoomResponse{
		BridgeTicket:  result.BridgeTicket,
		AlreadyLive:   result.AlreadyLive,
		RecordingMode: result.RecordingMode,
		Credential:    result.Credential,
	})
}

type endRoomResponse struct {
	EndedAt       int64 `json:"ended_at"`
	GraceDeadline int64 `json:"grace_deadline"`
	AlreadyEnded  bool  `json:"already_ended"`
}

func (h *Handler) endRoom(w http.ResponseWriter, r *http.Request) {
	wallet, err := requireWallet(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.rooms.End(r.Context(), r.PathValue("id"), wallet)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, endRoomResponse{EndedAt: result.EndedAt, GraceDeadline: result.GraceDeadline, AlreadyEnded: result.AlreadyEnded})
}

type guestAcceptResponse struct {
	GuestWallet     string `json:"guest_wallet"`
	AcceptedAt      int64  `json:"accepted_at"`
	AlreadyAccepted bool   `json:"already_accepted"`
}

func (h *Handler) guestAccept(w http.ResponseWriter, r *http.Request) {
	wallet, err := requireWallet(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.rooms.GuestAccept(r.Context(), r.PathValue("id"), wallet)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, guestAcceptResponse{GuestWallet: result.GuestWallet, AcceptedAt: result.AcceptedAt, AlreadyAccepted: result.AlreadyAccepted})
}

type guestStartResponse struct {
	BridgeTicket   string           `json:"bridge_ticket,omitempty"`
	AlreadyStarted bool             `json:"already_started"`
	Credential     media.Credential `json:"credential"`
}

func (h *Handler) guestStart(w http.ResponseWriter, r *http.Request) {
	wallet, err := requireWallet(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.rooms.GuestStart(r.Context(), r.PathValue("id"), wallet)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, guestStartResponse{BridgeTicket: result.BridgeTicket, AlreadyStarted: result.AlreadyStarted, Credential: result.Credential})
}

func (h *Handler) guestRemove(w http.ResponseWriter, r *http.Request) {
	wallet, err := requireWallet(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.rooms.GuestRemove(r.Context(), r.PathValue("id"), wallet)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"removed": result.Removed})
}

type ticketRequest struct {
	Ticket string `json:"ticket"`
}

type bridgeTokenResponse struct {
	Seat       domain.Seat      `json:"seat"`
	Credential media.Credential `json:"credential"`
}

func (h *Handler) bridgeToken(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.rooms.BridgeToken(r.Context(), r.PathValue("id"), req.Ticket)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bridgeTokenResponse{Seat: result.Seat, Credential: result.Credential})
}

type heartbeatRequest struct {
	Ticket      string `json:"ticket"`
	Status      string `json:"status"`
	Mode        string `json:"mode,omitempty"`
	AudioActive bool   `json:"audio_active,omitempty"`
	VideoActive bool   `json:"video_active,omitempty"`
}

type heartbeatResponse struct {
	Seat domain.Seat          `json:"seat"`
	View domain.BroadcastView `json:"view"`
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.rooms.Heartbeat(r.Context(), r.PathValue("id"), room.HeartbeatParams{
		Ticket:      req.Ticket,
		Status:      req.Status,
		Mode:        req.Mode,
		AudioActive: req.AudioActive,
		VideoActive: req.VideoActive,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, heartbeatResponse{Seat: result.Seat, View: result.View})
}

type recordingCompleteRequest struct {
	Ticket      string `json:"ticket"`
	PlaybackURL string `json:"playback_url"`
	DownloadURL string `json:"download_url,omitempty"`
}

func (h *Handler) recordingComplete(w http.ResponseWriter, r *http.Request) {
	var req recordingCompleteRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.rooms.RecordingComplete(r.Context(), r.PathValue("id"), req.Ticket, req.PlaybackURL, req.DownloadURL); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type startSegmentRequest struct {
	PayTo        string                `json:"pay_to,omitempty"`
	LiveAmount   string                `json:"live_amount,omitempty"`
	ReplayAmount string                `json:"replay_amount,omitempty"`
	Rights       *domain.SegmentRights `json:"rights,omitempty"`
	SongID       string                `json:"song_id,omitempty"`
}

func (h *Handler) startSegment(w http.ResponseWriter, r *http.Request) {
	wallet, err := requireWallet(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req startSegmentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.rooms.StartSegment(r.Context(), r.PathValue("id"), wallet, room.StartSegmentParams{
		PayTo:        req.PayTo,
		LiveAmount:   req.LiveAmount,
		ReplayAmount: req.ReplayAmount,
		Rights:       req.Rights,
		SongID:       req.SongID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]domain.Segment{"segment": result.Segment})
}

type enterRequest struct {
	Payment  json.RawMessage `json:"payment,omitempty"`
	Resource string          `json:"resource,omitempty"`
}

type enterResponse struct {
	Credential media.Credential     `json:"credential"`
	ExpiresAt  int64                `json:"expires_at"`
	View       domain.BroadcastView `json:"view"`
	Receipt    *room.Receipt        `json:"receipt,omitempty"`
}

func (h *Handler) enter(w http.ResponseWriter, r *http.Request) {
	wallet, err := requireWallet(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.handleEnter(w, r, wallet, false)
}

func (h *Handler) publicEnter(w http.ResponseWriter, r *http.Request) {
	h.handleEnter(w, r, optionalWallet(r), true)
}

func (h *Handler) handleEnter(w http.ResponseWriter, r *http.Request, wallet string, public bool) {
	var req enterRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	claim, err := paymentClaim(r, req.Payment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var result room.EnterResult
	if public {
		result, err = h.rooms.PublicEnter(r.Context(), r.PathValue("id"), wallet, claim, req.Resource)
	} else {
		result, err = h.rooms.Enter(r.Context(), r.PathValue("id"), wallet, claim, req.Resource)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writePaymentResponse(w, result.Receipt)
	h.writeJSON(w, http.StatusOK, enterResponse{
		Credential: result.Credential,
		ExpiresAt:  result.ExpiresAt,
		View:       result.View,
		Receipt:    result.Receipt,
	})
}

type replayAccessResponse struct {
	Mode       domain.ReplayMode `json:"mode"`
	URL        string            `json:"url,omitempty"`
	GrantToken string            `json:"grant_token,omitempty"`
	ExpiresAt  int64             `json:"expires_at,omitempty"`
	Receipt    *room.Receipt     `json:"receipt,omitempty"`
}

func (h *Handler) replayAccess(w http.ResponseWriter, r *http.Request) {
	var req enterRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	claim, err := paymentClaim(r, req.Payment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.rooms.ReplayAccess(r.Context(), r.PathValue("id"), optionalWallet(r), claim, req.Resource)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writePaymentResponse(w, result.Receipt)
	h.writeJSON(w, http.StatusOK, replayAccessResponse{
		Mode:       result.Mode,
		URL:        result.URL,
		GrantToken: result.GrantToken,
		ExpiresAt:  result.ExpiresAt,
		Receipt:    result.Receipt,
	})
}

func (h *Handler) replaySource(w http.ResponseWriter, r *http.Request) {
	result, err := h.rooms.ReplaySource(r.Context(), r.PathValue("id"), r.URL.Query().Get("token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"media_url": result.MediaURL})
}
