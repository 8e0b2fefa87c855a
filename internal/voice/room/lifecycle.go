package room

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
	"github.com/louisbranch/duetstage/internal/platform/id"
	"github.com/louisbranch/duetstage/internal/voice/domain"
	"github.com/louisbranch/duetstage/internal/voice/media"
	"github.com/louisbranch/duetstage/internal/voice/storage"
	"github.com/louisbranch/duetstage/internal/voice/token"
)

// defaultAccessWindowMinutes applies when a room is created without an
// explicit access window.
const defaultAccessWindowMinutes = 60

// allowedNetworks restricts which settlement networks rooms may be priced on.
var allowedNetworks = map[string]bool{
	"base":         true,
	"base-sepolia": true,
	"eip155:8453":  true,
	"eip155:84532": true,
}

// Init creates a room. Passing an existing room id replays the original
// creation instead of re-creating.
func (s *Service) Init(ctx context.Context, params InitParams) (InitResult, error) {
	hostWallet, err := domain.NormalizeWallet(params.HostWallet)
	if err != nil {
		return InitResult{}, err
	}
	payTo, err := domain.NormalizeWallet(params.PayTo)
	if err != nil {
		return InitResult{}, err
	}
	guestWallet := ""
	if strings.TrimSpace(params.GuestWallet) != "" {
		guestWallet, err = domain.NormalizeWallet(params.GuestWallet)
		if err != nil {
			return InitResult{}, err
		}
	}

	if err := domain.ValidateAmount(params.LiveAmount); err != nil {
		return InitResult{}, err
	}
	if params.ReplayAmount != "" {
		if err := domain.ValidateAmount(params.ReplayAmount); err != nil {
			return InitResult{}, err
		}
	}

	network := strings.TrimSpace(params.Network)
	if network == "" {
		return InitResult{}, apperrors.New(apperrors.CodeInvalidNetwork, "network is required")
	}
	if !allowedNetworks[network] {
		return InitResult{}, apperrors.WithMetadata(apperrors.CodeNetworkNotAllowed, "network is not allowed", map[string]string{"network": network})
	}
	asset, err := domain.NormalizeWallet(params.Asset)
	if err != nil {
		return InitResult{}, apperrors.New(apperrors.CodeAssetNotAllowed, "asset must be a token contract address")
	}

	replayMode := params.ReplayMode
	if replayMode == "" {
		replayMode = domain.ReplayLoadGated
	}
	if replayMode != domain.ReplayLoadGated && replayMode != domain.ReplayWorkerGated {
		return InitResult{}, apperrors.New(apperrors.CodeInvalidRequest, "unknown replay mode")
	}

	windowMinutes := params.AccessWindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = defaultAccessWindowMinutes
	}

	roomID := strings.TrimSpace(params.RoomID)
	if roomID == "" {
		roomID, err = id.NewID()
		if err != nil {
			return InitResult{}, apperrors.Wrap(apperrors.CodeInternal, "generate room id", err)
		}
	}

	ctx, span, unlock := s.startOp(ctx, "init", roomID)
	defer span.End()
	defer unlock()

	existing, err := s.store.GetRoom(ctx, roomID)
	switch {
	case err == nil:
		if !domain.EqualAddress(existing.HostWallet, hostWallet) {
			return InitResult{}, apperrors.New(apperrors.CodeForbidden, "room id belongs to another host")
		}
		return InitResult{RoomID: existing.ID, ChannelID: existing.ChannelID, Status: existing.Status}, nil
	case !storage.IsNotFound(err):
		return InitResult{}, err
	}

	now := s.now().Unix()
	visibility := strings.TrimSpace(params.Visibility)
	if visibility == "" {
		visibility = "public"
	}
	recordingMode := strings.TrimSpace(params.RecordingMode)
	if recordingMode == "" {
		recordingMode = "none"
	}

	meta := domain.RoomMeta{
		SchemaVersion:       domain.CurrentSchemaVersion,
		ID:                  roomID,
		ChannelID:           media.ChannelName(roomID),
		Status:              domain.RoomCreated,
		Title:               strings.TrimSpace(params.Title),
		RoomKind:            strings.TrimSpace(params.RoomKind),
		Visibility:          visibility,
		HostWallet:          hostWallet,
		PayTo:               payTo,
		Network:             network,
		Asset:               asset,
		LiveAmount:          params.LiveAmount,
		ReplayAmount:        params.ReplayAmount,
		AccessWindowSeconds: windowMinutes * 60,
		ReplayMode:          replayMode,
		RecordingMode:       recordingMode,
		CreatedAt:           now,
	}
	if guestWallet != "" {
		meta.GuestWallet = guestWallet
		meta.GuestAcceptedAt = now
	}
	first := domain.Segment{
		ID:        roomID + "-seg-1",
		StartedAt: now,
		PayTo:     payTo,
		Pricing: domain.SegmentPricing{
			LiveAmount:   params.LiveAmount,
			ReplayAmount: params.ReplayAmount,
		},
	}
	if err := meta.AppendSegment(first); err != nil {
		return InitResult{}, err
	}

	if err := s.saveRoom(ctx, meta); err != nil {
		return InitResult{}, err
	}
	return InitResult{RoomID: roomID, ChannelID: meta.ChannelID, Status: meta.Status, Created: true}, nil
}

// Start transitions a room live and mints the host's one-time bridge ticket.
// While already live it replays without rotating the ticket.
func (s *Service) Start(ctx context.Context, roomID, wallet string) (StartResult, error) {
	ctx, span, unlock := s.startOp(ctx, "start", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return StartResult{}, err
	}
	if !domain.EqualAddress(wallet, meta.HostWallet) {
		return StartResult{}, apperrors.New(apperrors.CodeForbidden, "only the host can start the room")
	}
	if meta.Status == domain.RoomEnded {
		return StartResult{}, apperrors.New(apperrors.CodeRoomAlreadyEnded, "room already ended")
	}

	if meta.Status == domain.RoomLive {
		cred, err := s.mintBroadcasterCredential(meta, meta.HostIngressUID)
		if err != nil {
			return StartResult{}, err
		}
		return StartResult{AlreadyLive: true, RecordingMode: meta.RecordingMode, Credential: cred}, nil
	}

	ticket, err := token.NewTicket()
	if err != nil {
		return StartResult{}, apperrors.Wrap(apperrors.CodeInternal, "mint bridge ticket", err)
	}
	meta.Status = domain.RoomLive
	meta.LiveAt = s.now().Unix()
	meta.HostTicketHash = token.HashTicket(ticket)
	meta.HostIngressUID = media.IngressUID(roomID + "/host")

	cred, err := s.mintBroadcasterCredential(meta, meta.HostIngressUID)
	if err != nil {
		return StartResult{}, err
	}
	if err := s.saveRoom(ctx, meta); err != nil {
		return StartResult{}, err
	}
	return StartResult{BridgeTicket: ticket, RecordingMode: meta.RecordingMode, Credential: cred}, nil
}

// End is the terminal, host-only transition. Replays report AlreadyEnded
// with the original timestamps.
func (s *Service) End(ctx context.Context, roomID, wallet string) (EndResult, error) {
	ctx, span, unlock := s.startOp(ctx, "end", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return EndResult{}, err
	}
	if !domain.EqualAddress(wallet, meta.HostWallet) {
		return EndResult{}, apperrors.New(apperrors.CodeForbidden, "only the host can end the room")
	}

	grace := int64(domain.EndGraceWindow / time.Second)
	if meta.Status == domain.RoomEnded {
		return EndResult{EndedAt: meta.EndedAt, GraceDeadline: meta.EndedAt + grace, AlreadyEnded: true}, nil
	}

	now := s.now().Unix()
	meta.Status = domain.RoomEnded
	meta.EndedAt = now
	if meta.Host.Status == domain.SeatLive {
		meta.Host.Status = domain.SeatStopped
	}
	if meta.Guest.Status == domain.SeatLive {
		meta.Guest.Status = domain.SeatStopped
	}
	if err := s.saveRoom(ctx, meta); err != nil {
		return EndResult{}, err
	}
	return EndResult{EndedAt: now, GraceDeadline: now + grace}, nil
}

// PublicInfo is the unauthenticated discovery view. Non-public rooms are
// indistinguishable from missing ones.
func (s *Service) PublicInfo(ctx context.Context, roomID string) (PublicInfo, error) {
	ctx, span, unlock := s.startOp(ctx, "public_info", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return PublicInfo{}, err
	}
	if meta.Visibility != "" && meta.Visibility != "public" {
		return PublicInfo{}, apperrors.New(apperrors.CodeRoomNotFound, "room not found")
	}

	seg, _ := meta.CurrentSegment()
	liveAmount, _ := meta.PriceFor(domain.KindLive, seg)
	replayAmount, _ := meta.PriceFor(domain.KindReplay, seg)

	return PublicInfo{
		RoomID:       meta.ID,
		Title:        meta.Title,
		RoomKind:     meta.RoomKind,
		Status:       meta.Status,
		Broadcast:    meta.DeriveBroadcast(s.now()),
		Network:      meta.Network,
		Asset:        meta.Asset,
		LiveAmount:   liveAmount,
		ReplayAmount: replayAmount,
		HasGuest:     meta.GuestWallet != "",
		HasRecording: meta.Recording != nil,
		ReplayMode:   meta.ReplayMode,
	}, nil
}
