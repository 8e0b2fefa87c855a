package room

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
	"github.com/louisbranch/duetstage/internal/voice/domain"
	"github.com/louisbranch/duetstage/internal/voice/media"
	"github.com/louisbranch/duetstage/internal/voice/token"
)

// GuestAccept binds the caller's wallet to the guest seat. The binding is
// one-time: replays by the same wallet succeed, any other wallet is refused.
func (s *Service) GuestAccept(ctx context.Context, roomID, wallet string) (GuestAcceptResult, error) {
	ctx, span, unlock := s.startOp(ctx, "guest_accept", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return GuestAcceptResult{}, err
	}
	if meta.Status == domain.RoomEnded {
		return GuestAcceptResult{}, apperrors.New(apperrors.CodeRoomAlreadyEnded, "room already ended")
	}
	if domain.EqualAddress(wallet, meta.HostWallet) {
		return GuestAcceptResult{}, apperrors.New(apperrors.CodeForbidden, "host cannot take the guest seat")
	}

	if meta.GuestWallet != "" {
		if !domain.EqualAddress(meta.GuestWallet, wallet) {
			return GuestAcceptResult{}, apperrors.New(apperrors.CodeGuestWalletLocked, "guest seat is bound to another wallet")
		}
		return GuestAcceptResult{GuestWallet: meta.GuestWallet, AcceptedAt: meta.GuestAcceptedAt, AlreadyAccepted: true}, nil
	}

	meta.GuestWallet = wallet
	meta.GuestAcceptedAt = s.now().Unix()
	if err := s.saveRoom(ctx, meta); err != nil {
		return GuestAcceptResult{}, err
	}
	return GuestAcceptResult{GuestWallet: meta.GuestWallet, AcceptedAt: meta.GuestAcceptedAt}, nil
}

// GuestStart mints the guest's one-time bridge ticket once the room is live.
func (s *Service) GuestStart(ctx context.Context, roomID, wallet string) (GuestStartResult, error) {
	ctx, span, unlock := s.startOp(ctx, "guest_start", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return GuestStartResult{}, err
	}
	if meta.Status == domain.RoomEnded {
		return GuestStartResult{}, apperrors.New(apperrors.CodeRoomAlreadyEnded, "room already ended")
	}
	if meta.Status != domain.RoomLive {
		return GuestStartResult{}, apperrors.New(apperrors.CodeRoomNotLive, "room is not live")
	}
	if meta.GuestWallet == "" {
		return GuestStartResult{}, apperrors.New(apperrors.CodeGuestNotAccepted, "guest seat has not been accepted")
	}
	if !domain.EqualAddress(wallet, meta.GuestWallet) {
		return GuestStartResult{}, apperrors.New(apperrors.CodeForbidden, "wallet does not hold the guest seat")
	}

	if meta.GuestTicketHash != "" {
		cred, err := s.mintBroadcasterCredential(meta, meta.GuestIngressUID)
		if err != nil {
			return GuestStartResult{}, err
		}
		return GuestStartResult{AlreadyStarted: true, Credential: cred}, nil
	}

	ticket, err := token.NewTicket()
	if err != nil {
		return GuestStartResult{}, apperrors.Wrap(apperrors.CodeInternal, "mint bridge ticket", err)
	}
	meta.GuestTicketHash = token.HashTicket(ticket)
	meta.GuestIngressUID = media.IngressUID(roomID + "/guest")

	cred, err := s.mintBroadcasterCredential(meta, meta.GuestIngressUID)
	if err != nil {
		return GuestStartResult{}, err
	}
	if err := s.saveRoom(ctx, meta); err != nil {
		return GuestStartResult{}, err
	}
	return GuestStartResult{BridgeTicket: ticket, Credential: cred}, nil
}

// GuestRemove clears the guest seat (host only). The removed guest's ticket
// hash moves to the revoked slot so in-flight requests fail with a distinct
// code rather than a generic forbidden.
func (s *Service) GuestRemove(ctx context.Context, roomID, wallet string) (GuestRemoveResult, error) {
	ctx, span, unlock := s.startOp(ctx, "guest_remove", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return GuestRemoveResult{}, err
	}
	if !domain.EqualAddress(wallet, meta.HostWallet) {
		return GuestRemoveResult{}, apperrors.New(apperrors.CodeForbidden, "only the host can remove the guest")
	}
	if meta.GuestWallet == "" {
		return GuestRemoveResult{}, nil
	}

	if meta.GuestTicketHash != "" {
		meta.GuestRevokedTicketHash = meta.GuestTicketHash
	}
	meta.GuestWallet = ""
	meta.GuestAcceptedAt = 0
	meta.GuestTicketHash = ""
	meta.GuestIngressUID = 0
	meta.Guest = domain.SeatState{}

	if err := s.saveRoom(ctx, meta); err != nil {
		return GuestRemoveResult{}, err
	}
	return GuestRemoveResult{Removed: true}, nil
}

// verifySeat resolves a bridge ticket to a seat by comparing hashes. Tickets
// themselves are never stored.
func verifySeat(meta *domain.RoomMeta, ticket string) (domain.Seat, error) {
	ticket = strings.TrimSpace(ticket)
	if ticket == "" {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "bridge ticket is required")
	}
	hash := token.HashTicket(ticket)
	switch {
	case meta.HostTicketHash != "" && hash == meta.HostTicketHash:
		return domain.SeatHost, nil
	case meta.GuestTicketHash != "" && hash == meta.GuestTicketHash:
		return domain.SeatGuest, nil
	case meta.GuestRevokedTicketHash != "" && hash == meta.GuestRevokedTicketHash:
		return "", apperrors.New(apperrors.CodeGuestRevoked, "guest seat was revoked")
	case meta.HostTicketHash == "":
		return "", apperrors.New(apperrors.CodeBridgeNotStarted, "room bridge has not started")
	default:
		return "", apperrors.New(apperrors.CodeForbidden, "unknown bridge ticket")
	}
}

// BridgeToken exchanges a bridge ticket for a fresh media credential.
func (s *Service) BridgeToken(ctx context.Context, roomID, ticket string) (BridgeTokenResult, error) {
	ctx, span, unlock := s.startOp(ctx, "bridge_token", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return BridgeTokenResult{}, err
	}
	seat, err := verifySeat(&meta, ticket)
	if err != nil {
		return BridgeTokenResult{}, err
	}
	if meta.Status != domain.RoomLive {
		return BridgeTokenResult{}, apperrors.New(apperrors.CodeRoomNotLive, "room is not live")
	}

	uid := meta.HostIngressUID
	if seat == domain.SeatGuest {
		uid = meta.GuestIngressUID
	}
	cred, err := s.mintBroadcasterCredential(meta, uid)
	if err != nil {
		return BridgeTokenResult{}, err
	}
	return BridgeTokenResult{Seat: seat, Credential: cred}, nil
}

// Heartbeat records one seat's self-reported broadcast state and returns the
// derived aggregate view.
func (s *Service) Heartbeat(ctx context.Context, roomID string, params HeartbeatParams) (HeartbeatResult, error) {
	ctx, span, unlock := s.startOp(ctx, "heartbeat", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return HeartbeatResult{}, err
	}
	seat, err := verifySeat(&meta, params.Ticket)
	if err != nil {
		return HeartbeatResult{}, err
	}
	if meta.Status != domain.RoomLive {
		return HeartbeatResult{}, apperrors.New(apperrors.CodeRoomNotLive, "room is not live")
	}
	if params.Status != domain.SeatLive && params.Status != domain.SeatStopped {
		return HeartbeatResult{}, apperrors.New(apperrors.CodeInvalidRequest, "status must be live or stopped")
	}

	now := s.now().Unix()
	state := meta.Host
	if seat == domain.SeatGuest {
		state = meta.Guest
	}
	if params.Status == domain.SeatLive && state.Status != domain.SeatLive {
		state.StartedAt = now
	}
	state.Status = params.Status
	state.Mode = params.Mode
	state.AudioActive = params.AudioActive
	state.VideoActive = params.VideoActive
	state.HeartbeatAt = now
	if seat == domain.SeatGuest {
		meta.Guest = state
	} else {
		meta.Host = state
	}

	if err := s.saveRoom(ctx, meta); err != nil {
		return HeartbeatResult{}, err
	}
	return HeartbeatResult{Seat: seat, View: meta.DeriveBroadcast(s.now())}, nil
}

// RecordingComplete finalizes the replay media (host ticket only). The host
// ticket stays valid for this call through the post-end grace window.
func (s *Service) RecordingComplete(ctx context.Context, roomID, ticket, playbackURL, downloadURL string) error {
	ctx, span, unlock := s.startOp(ctx, "recording_complete", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	seat, err := verifySeat(&meta, ticket)
	if err != nil {
		return err
	}
	if seat != domain.SeatHost {
		return apperrors.New(apperrors.CodeForbidden, "only the host ticket can finalize the recording")
	}
	if meta.Status == domain.RoomEnded && !meta.WithinEndGrace(s.now()) {
		return apperrors.New(apperrors.CodeBridgeTicketExpired, "bridge ticket expired after the end grace window")
	}
	if strings.TrimSpace(playbackURL) == "" {
		return apperrors.New(apperrors.CodeInvalidRequest, "playback url is required")
	}

	// First finalize wins; replays keep the original recording.
	if meta.Recording != nil {
		return nil
	}
	meta.Recording = &domain.Recording{
		PlaybackURL: playbackURL,
		DownloadURL: downloadURL,
		CompletedAt: s.now().Unix(),
	}
	return s.saveRoom(ctx, meta)
}
