package room

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
	"github.com/louisbranch/duetstage/internal/voice/domain"
	"github.com/louisbranch/duetstage/internal/voice/payment"
	"github.com/louisbranch/duetstage/internal/voice/storage"
	"github.com/louisbranch/duetstage/internal/voice/token"
)

// ReplayAccess gates replay playback once a recording exists. Load-gated
// rooms delegate to the external storage layer's locator; worker-gated rooms
// run the payment flow here and hand out a one-time grant token.
func (s *Service) ReplayAccess(ctx context.Context, roomID, wallet string, claimBody []byte, resource string) (ReplayAccessResult, error) {
	ctx, span, unlock := s.startOp(ctx, "replay_access", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return ReplayAccessResult{}, err
	}
	if meta.Recording == nil {
		return ReplayAccessResult{}, apperrors.New(apperrors.CodeReplayNotReady, "replay recording is not ready")
	}

	if meta.ReplayMode == domain.ReplayLoadGated {
		return ReplayAccessResult{Mode: meta.ReplayMode, URL: meta.Recording.PlaybackURL}, nil
	}

	seg, ok := meta.CurrentSegment()
	if !ok {
		return ReplayAccessResult{}, apperrors.New(apperrors.CodeInternal, "room has no current segment")
	}
	amount, _ := meta.PriceFor(domain.KindReplay, seg)
	now := s.now()

	var receipt *Receipt
	var pending *settlement

	switch {
	case domain.ZeroAmount(amount):
		if _, err := s.extendEntitlement(ctx, meta.ID, wallet, domain.KindReplay, now, meta.AccessWindow()); err != nil {
			return ReplayAccessResult{}, err
		}
	default:
		if strings.TrimSpace(wallet) == "" {
			return ReplayAccessResult{}, apperrors.New(apperrors.CodeUnauthenticated, "wallet is required for gated replay")
		}
		if _, ok, err := s.activeEntitlement(ctx, meta.ID, wallet, domain.KindReplay, now); err != nil {
			return ReplayAccessResult{}, err
		} else if ok {
			break
		}
		if len(claimBody) == 0 {
			return ReplayAccessResult{}, s.challenge(&meta, domain.KindReplay, resource, apperrors.CodePaymentRequired, "")
		}
		claim, err := payment.ParseClaim(claimBody)
		if err != nil {
			return ReplayAccessResult{}, s.challenge(&meta, domain.KindReplay, resource, apperrors.CodePaymentRequired, reasonInvalidClaim)
		}
		target, err := s.resolveSegment(&meta, claim)
		if err != nil {
			code := apperrors.GetCode(err)
			if code == apperrors.CodeSegmentCheckoutRequired || code == apperrors.CodeSegmentCheckoutMismatch {
				return ReplayAccessResult{}, s.challenge(&meta, domain.KindReplay, resource, code, "")
			}
			return ReplayAccessResult{}, err
		}
		_, receipt, pending, err = s.settleClaim(ctx, &meta, wallet, domain.KindReplay, target, claim, resource, now)
		if err != nil {
			return ReplayAccessResult{}, err
		}
	}

	s.maybePrune(ctx, &meta)
	if pending != nil {
		if err := s.store.PutSettlement(ctx, meta, pending.entitlement, pending.marker); err != nil {
			return ReplayAccessResult{}, apperrors.Wrap(apperrors.CodeInternal, "record settlement", err)
		}
	} else if err := s.saveRoom(ctx, meta); err != nil {
		return ReplayAccessResult{}, err
	}

	grantToken, err := token.NewTicket()
	if err != nil {
		return ReplayAccessResult{}, apperrors.Wrap(apperrors.CodeInternal, "mint replay grant", err)
	}
	grant := domain.ReplayGrant{
		TokenHash: token.HashTicket(grantToken),
		RoomID:    meta.ID,
		Wallet:    wallet,
		MediaURL:  meta.Recording.PlaybackURL,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(domain.ReplayGrantTTL).Unix(),
	}
	if err := s.store.PutGrant(ctx, grant); err != nil {
		return ReplayAccessResult{}, apperrors.Wrap(apperrors.CodeInternal, "save replay grant", err)
	}

	return ReplayAccessResult{
		Mode:       meta.ReplayMode,
		GrantToken: grantToken,
		ExpiresAt:  grant.ExpiresAt,
		Receipt:    receipt,
	}, nil
}

// ReplaySource redeems a replay grant token for the media locator. Exactly
// one redemption is permitted per token; expiry counts as a redemption.
func (s *Service) ReplaySource(ctx context.Context, roomID, grantToken string) (ReplaySourceResult, error) {
	ctx, span, unlock := s.startOp(ctx, "replay_source", roomID)
	defer span.End()
	defer unlock()

	if _, err := s.loadRoom(ctx, roomID); err != nil {
		return ReplaySourceResult{}, err
	}
	grantToken = strings.TrimSpace(grantToken)
	if grantToken == "" {
		return ReplaySourceResult{}, apperrors.New(apperrors.CodeReplayTokenInvalid, "replay token is required")
	}

	grant, err := s.store.ConsumeGrant(ctx, roomID, token.HashTicket(grantToken))
	if err != nil {
		if storage.IsNotFound(err) {
			return ReplaySourceResult{}, apperrors.New(apperrors.CodeReplayTokenInvalid, "replay token is invalid or already used")
		}
		return ReplaySourceResult{}, apperrors.Wrap(apperrors.CodeInternal, "consume replay grant", err)
	}
	if grant.Expired(s.now()) {
		return ReplaySourceResult{}, apperrors.New(apperrors.CodeReplayTokenInvalid, "replay token expired")
	}
	return ReplaySourceResult{MediaURL: grant.MediaURL}, nil
}
