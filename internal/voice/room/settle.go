package room

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
	"github.com/louisbranch/duetstage/internal/platform/id"
	"github.com/louisbranch/duetstage/internal/voice/domain"
	"github.com/louisbranch/duetstage/internal/voice/payment"
	"github.com/louisbranch/duetstage/internal/voice/storage"
	"github.com/louisbranch/duetstage/internal/voice/token"
)

// Settlement-client rejection reasons surfaced inside fresh challenges.
const (
	reasonInvalidClaim   = "invalid_payment_claim"
	reasonWalletMismatch = "wallet_mismatch"
)

// Enter grants an authenticated viewer an ingress credential, settling an
// attached payment claim when the entitlement does not already cover access.
func (s *Service) Enter(ctx context.Context, roomID, wallet string, claimBody []byte, resource string) (EnterResult, error) {
	if strings.TrimSpace(wallet) == "" {
		return EnterResult{}, apperrors.New(apperrors.CodeUnauthenticated, "wallet is required")
	}
	return s.enter(ctx, roomID, wallet, claimBody, resource, false)
}

// PublicEnter is the anonymous variant for public rooms. A settled claim is
// still recorded for idempotency, but no entitlement is persisted: access is
// a one-shot ephemeral window.
func (s *Service) PublicEnter(ctx context.Context, roomID, wallet string, claimBody []byte, resource string) (EnterResult, error) {
	return s.enter(ctx, roomID, wallet, claimBody, resource, true)
}

func (s *Service) enter(ctx context.Context, roomID, wallet string, claimBody []byte, resource string, public bool) (EnterResult, error) {
	ctx, span, unlock := s.startOp(ctx, "enter", roomID)
	defer span.End()
	defer unlock()

	meta, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return EnterResult{}, err
	}
	if public && meta.Visibility != "" && meta.Visibility != "public" {
		return EnterResult{}, apperrors.New(apperrors.CodeForbidden, "room is not public")
	}
	if meta.Status == domain.RoomEnded {
		return EnterResult{}, apperrors.New(apperrors.CodeRoomAlreadyEnded, "room already ended")
	}
	if meta.Status != domain.RoomLive {
		return EnterResult{}, apperrors.New(apperrors.CodeRoomNotLive, "room is not live")
	}

	seg, ok := meta.CurrentSegment()
	if !ok {
		return EnterResult{}, apperrors.New(apperrors.CodeInternal, "room has no current segment")
	}
	amount, _ := meta.PriceFor(domain.KindLive, seg)
	now := s.now()

	var expiry int64
	var receipt *Receipt
	var pending *settlement

	switch {
	case domain.ZeroAmount(amount):
		// Free access always grants and still extends the window.
		expiry, err = s.extendEntitlement(ctx, meta.ID, wallet, domain.KindLive, now, meta.AccessWindow())
		if err != nil {
			return EnterResult{}, err
		}
	default:
		if stored, ok, err := s.activeEntitlement(ctx, meta.ID, wallet, domain.KindLive, now); err != nil {
			return EnterResult{}, err
		} else if ok {
			expiry = stored
			break
		}
		if len(claimBody) == 0 {
			return EnterResult{}, s.challenge(&meta, domain.KindLive, resource, apperrors.CodePaymentRequired, "")
		}
		claim, err := payment.ParseClaim(claimBody)
		if err != nil {
			return EnterResult{}, s.challenge(&meta, domain.KindLive, resource, apperrors.CodePaymentRequired, reasonInvalidClaim)
		}
		target, err := s.resolveSegment(&meta, claim)
		if err != nil {
			code := apperrors.GetCode(err)
			if code == apperrors.CodeSegmentCheckoutRequired || code == apperrors.CodeSegmentCheckoutMismatch {
				return EnterResult{}, s.challenge(&meta, domain.KindLive, resource, code, "")
			}
			return EnterResult{}, err
		}
		expiry, receipt, pending, err = s.settleClaim(ctx, &meta, wallet, domain.KindLive, target, claim, resource, now)
		if err != nil {
			return EnterResult{}, err
		}
	}

	s.maybePrune(ctx, &meta)
	// A fresh settle commits the room, the entitlement, and the marker in one
	// write: a failure anywhere leaves the claim unconsumed and the grant
	// unextended, never half of either.
	if pending != nil {
		if err := s.store.PutSettlement(ctx, meta, pending.entitlement, pending.marker); err != nil {
			return EnterResult{}, apperrors.Wrap(apperrors.CodeInternal, "record settlement", err)
		}
	} else if err := s.saveRoom(ctx, meta); err != nil {
		return EnterResult{}, err
	}

	cred, err := s.mintAudienceCredential(meta, s.viewerSeed(meta.ID, wallet))
	if err != nil {
		return EnterResult{}, err
	}
	return EnterResult{
		Credential: cred,
		ExpiresAt:  expiry,
		View:       meta.DeriveBroadcast(now),
		Receipt:    receipt,
	}, nil
}

// settlement carries the records one fresh settle must commit together. The
// entitlement is nil for anonymous viewers.
type settlement struct {
	marker      domain.SettleMarker
	entitlement *domain.Entitlement
}

// settleClaim consumes one payment claim exactly once. Replays of an
// already-consumed claim by the same wallet return the original grant; any
// other wallet, or a lapsed grant, is a hard conflict. Nothing is persisted
// here: a fresh settle returns the pending records and the caller commits
// them in one store write alongside the room.
func (s *Service) settleClaim(ctx context.Context, meta *domain.RoomMeta, wallet string, kind domain.EntitlementKind, seg domain.Segment, claim payment.Claim, resource string, now time.Time) (int64, *Receipt, *settlement, error) {
	hash := token.HashClaim(claim.Raw())

	existing, err := s.store.GetMarker(ctx, meta.ID, hash)
	switch {
	case err == nil:
		expiry, receipt, err := s.replayMarker(existing, wallet, now)
		return expiry, receipt, nil, err
	case !storage.IsNotFound(err):
		return 0, nil, nil, apperrors.Wrap(apperrors.CodeInternal, "load settlement marker", err)
	}

	req := s.requirementFor(meta, kind, seg, resource)
	result, err := s.verifier.Settle(ctx, claim, req)
	if err != nil {
		return 0, nil, nil, err
	}
	if !result.Settled {
		code := apperrors.CodePaymentSettlementFailed
		if result.Reason == payment.ReasonNotExplicitlyConfirmed {
			code = apperrors.CodePaymentSettlementNotExplicitlyConfirmed
		}
		return 0, nil, nil, s.challenge(meta, kind, resource, code, result.Reason)
	}
	if wallet != "" && result.Payer != "" && !domain.EqualAddress(result.Payer, wallet) {
		return 0, nil, nil, s.challenge(meta, kind, resource, apperrors.CodePaymentSettlementFailed, reasonWalletMismatch)
	}

	// Re-check after the settle round trip: another request may have consumed
	// the same claim while this one was in flight.
	if existing, err := s.store.GetMarker(ctx, meta.ID, hash); err == nil {
		expiry, receipt, err := s.replayMarker(existing, wallet, now)
		return expiry, receipt, nil, err
	}

	var expiry int64
	var ent *domain.Entitlement
	if wallet != "" {
		stored, err := s.store.GetEntitlement(ctx, meta.ID, wallet)
		if err != nil && !storage.IsNotFound(err) {
			return 0, nil, nil, apperrors.Wrap(apperrors.CodeInternal, "load entitlement", err)
		}
		stored.RoomID = meta.ID
		stored.Wallet = wallet
		expiry = stored.Extend(kind, now, meta.AccessWindow())
		ent = &stored
	} else {
		expiry = now.Add(meta.AccessWindow()).Unix()
	}

	meta.LockSegment(seg.ID, now, result.TxReference)

	amount, payTo := meta.PriceFor(kind, seg)
	marker := domain.SettleMarker{
		ClaimHash:     hash,
		RoomID:        meta.ID,
		Wallet:        wallet,
		Kind:          kind,
		SegmentID:     seg.ID,
		Amount:        amount,
		PayTo:         payTo,
		ExpiresAt:     expiry,
		SettledAt:     now.Unix(),
		FacilitatorID: result.FacilitatorID,
		TxReference:   result.TxReference,
	}
	receipt := &Receipt{
		Settled:       true,
		Kind:          kind,
		SegmentID:     seg.ID,
		ExpiresAt:     expiry,
		FacilitatorID: result.FacilitatorID,
		TxReference:   result.TxReference,
	}
	return expiry, receipt, &settlement{marker: marker, entitlement: ent}, nil
}

func (s *Service) replayMarker(marker domain.SettleMarker, wallet string, now time.Time) (int64, *Receipt, error) {
	if !domain.EqualAddress(marker.Wallet, wallet) {
		return 0, nil, apperrors.New(apperrors.CodePaymentSignatureReused, "payment signature was consumed by another wallet")
	}
	if marker.Stale(now) {
		return 0, nil, apperrors.New(apperrors.CodePaymentSignatureAlreadyConsumed, "payment signature was already consumed and its grant has lapsed")
	}
	return marker.ExpiresAt, &Receipt{
		Settled:       true,
		Idempotent:    true,
		Kind:          marker.Kind,
		SegmentID:     marker.SegmentID,
		ExpiresAt:     marker.ExpiresAt,
		FacilitatorID: marker.FacilitatorID,
		TxReference:   marker.TxReference,
	}, nil
}

// resolveSegment decides which segment a claim is paying for. A checkout
// token pins the segment the challenge was priced against; without one, only
// the current segment is payable.
func (s *Service) resolveSegment(meta *domain.RoomMeta, claim payment.Claim) (domain.Segment, error) {
	if tok := claim.CheckoutToken(); tok != "" {
		claims, err := s.checkout.Verify(tok, meta.ID)
		if err != nil {
			return domain.Segment{}, err
		}
		seg, ok := meta.FindSegment(claims.SegmentID)
		if !ok {
			return domain.Segment{}, apperrors.WithMetadata(
				apperrors.CodeSegmentCheckoutMismatch,
				"checkout token names an unknown segment",
				map[string]string{"segment_id": claims.SegmentID},
			)
		}
		return seg, nil
	}

	target := meta.CurrentSegmentID
	if fromResource := segmentFromResource(claim.Resource); fromResource != "" {
		target = fromResource
	}
	if target != meta.CurrentSegmentID {
		return domain.Segment{}, apperrors.New(apperrors.CodeSegmentCheckoutRequired, "a checkout token is required to pay for a non-current segment")
	}
	seg, ok := meta.FindSegment(target)
	if !ok {
		return domain.Segment{}, apperrors.New(apperrors.CodeInternal, "room has no current segment")
	}
	return seg, nil
}

// segmentFromResource extracts the segment fragment from a resource locator.
func segmentFromResource(resource string) string {
	if i := strings.Index(resource, "#seg="); i >= 0 {
		return resource[i+len("#seg="):]
	}
	return ""
}

// challenge builds a fresh payment challenge priced against the current
// segment, with a checkout token binding the client to that price.
func (s *Service) challenge(meta *domain.RoomMeta, kind domain.EntitlementKind, resource string, code apperrors.Code, reason string) error {
	seg, _ := meta.CurrentSegment()
	req := s.requirementFor(meta, kind, seg, resource)
	if tok, err := s.checkout.Mint(meta.ID, seg.ID); err == nil {
		req.Extra = map[string]string{"checkout_token": tok}
	}
	return &ChallengeError{Code: code, Reason: reason, Accepts: []payment.Requirement{req}}
}

// requirementFor prices one segment for one access kind.
func (s *Service) requirementFor(meta *domain.RoomMeta, kind domain.EntitlementKind, seg domain.Segment, resource string) payment.Requirement {
	amount, payTo := meta.PriceFor(kind, seg)
	if i := strings.Index(resource, "#"); i >= 0 {
		resource = resource[:i]
	}
	if resource == "" {
		resource = defaultResource(meta.ID, kind)
	}
	return payment.Requirement{
		Scheme:            payment.SchemeExact,
		Network:           meta.Network,
		Asset:             meta.Asset,
		PayTo:             payTo,
		Resource:          resource + "#seg=" + seg.ID,
		MaxAmountRequired: amount,
		MaxTimeoutSeconds: maxTimeoutSeconds,
	}
}

func defaultResource(roomID string, kind domain.EntitlementKind) string {
	if kind == domain.KindReplay {
		return "/duet/" + roomID + "/replay-access"
	}
	return "/duet/" + roomID + "/enter"
}

// extendEntitlement grows a wallet's access window. Anonymous viewers get an
// ephemeral window that is never persisted.
func (s *Service) extendEntitlement(ctx context.Context, roomID, wallet string, kind domain.EntitlementKind, now time.Time, window time.Duration) (int64, error) {
	if wallet == "" {
		return now.Add(window).Unix(), nil
	}
	ent, err := s.store.GetEntitlement(ctx, roomID, wallet)
	if err != nil && !storage.IsNotFound(err) {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "load entitlement", err)
	}
	ent.RoomID = roomID
	ent.Wallet = wallet
	expiry := ent.Extend(kind, now, window)
	if err := s.store.PutEntitlement(ctx, ent); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "save entitlement", err)
	}
	return expiry, nil
}

// activeEntitlement is the idempotent fast path: a covered wallet enters
// without touching the payment flow and without extension.
func (s *Service) activeEntitlement(ctx context.Context, roomID, wallet string, kind domain.EntitlementKind, now time.Time) (int64, bool, error) {
	if wallet == "" {
		return 0, false, nil
	}
	ent, err := s.store.GetEntitlement(ctx, roomID, wallet)
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, apperrors.Wrap(apperrors.CodeInternal, "load entitlement", err)
	}
	if !ent.Active(kind, now) {
		return 0, false, nil
	}
	return ent.ExpiresAt(kind), true, nil
}

// viewerSeed derives the numeric media identity for a viewer. Anonymous
// viewers get a random identity per grant.
func (s *Service) viewerSeed(roomID, wallet string) string {
	if wallet != "" {
		return roomID + "/viewer/" + wallet
	}
	anon, err := id.NewID()
	if err != nil {
		anon = "anon"
	}
	return roomID + "/viewer/" + anon
}
