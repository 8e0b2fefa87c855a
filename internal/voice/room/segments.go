package room

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
	"github.com/louisbranch/duetstage/internal/voice/domain"
)

// StartSegment opens a new economic segment and makes it current (host only).
// Earlier segments keep their pricing; settled ones are locked forever.
func (s *Service) StartSegment(ctx context.Context, roomID, wallet string, params StartSegmentParams) (StartSegmentResult, error) {
	ctx, span, unlock := s.startOp(ctx, "start_segment", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return StartSegmentResult{}, err
	}
	if !domain.EqualAddress(wallet, meta.HostWallet) {
		return StartSegmentResult{}, apperrors.New(apperrors.CodeForbidden, "only the host can start a segment")
	}
	if meta.Status == domain.RoomEnded {
		return StartSegmentResult{}, apperrors.New(apperrors.CodeRoomAlreadyEnded, "room already ended")
	}
	if meta.Status != domain.RoomLive {
		return StartSegmentResult{}, apperrors.New(apperrors.CodeRoomNotLive, "room is not live")
	}

	current, _ := meta.CurrentSegment()

	payTo := strings.TrimSpace(params.PayTo)
	if payTo == "" {
		payTo = current.PayTo
	} else {
		payTo, err = domain.NormalizeWallet(payTo)
		if err != nil {
			return StartSegmentResult{}, err
		}
	}

	pricing := current.Pricing
	if params.LiveAmount != "" {
		if err := domain.ValidateAmount(params.LiveAmount); err != nil {
			return StartSegmentResult{}, err
		}
		pricing.LiveAmount = params.LiveAmount
	}
	if params.ReplayAmount != "" {
		if err := domain.ValidateAmount(params.ReplayAmount); err != nil {
			return StartSegmentResult{}, err
		}
		pricing.ReplayAmount = params.ReplayAmount
	}

	rights, err := validateRights(params.Rights)
	if err != nil {
		return StartSegmentResult{}, err
	}

	seg := domain.Segment{
		ID:        fmt.Sprintf("%s-seg-%d", roomID, len(meta.Segments)+1),
		StartedAt: s.now().Unix(),
		PayTo:     payTo,
		Pricing:   pricing,
		Rights:    rights,
		SongID:    strings.TrimSpace(params.SongID),
	}
	if err := meta.AppendSegment(seg); err != nil {
		return StartSegmentResult{}, err
	}
	if err := s.saveRoom(ctx, meta); err != nil {
		return StartSegmentResult{}, err
	}
	return StartSegmentResult{Segment: seg}, nil
}

func validateRights(rights *domain.SegmentRights) (*domain.SegmentRights, error) {
	if rights == nil {
		return nil, nil
	}
	switch rights.Kind {
	case "original":
		return rights, nil
	case "derivative":
		if rights.UpstreamBPS > 10_000 {
			return nil, apperrors.New(apperrors.CodeInvalidRequest, "upstream share exceeds 10000 bps")
		}
		if rights.UpstreamPayout != "" {
			payout, err := domain.NormalizeWallet(rights.UpstreamPayout)
			if err != nil {
				return nil, err
			}
			rights.UpstreamPayout = payout
		}
		return rights, nil
	default:
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "rights kind must be original or derivative")
	}
}
