// Package room implements the room authority: one serialized state machine
// per room enforcing payment-gated access, capability tickets, broadcast
// liveness, and exactly-once settlement.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
	"github.com/louisbranch/duetstage/internal/voice/domain"
	"github.com/louisbranch/duetstage/internal/voice/media"
	"github.com/louisbranch/duetstage/internal/voice/payment"
	"github.com/louisbranch/duetstage/internal/voice/storage"
	"github.com/louisbranch/duetstage/internal/voice/token"
)

// checkoutTTL bounds how long a payment challenge's segment binding is valid.
const checkoutTTL = 10 * time.Minute

// maxTimeoutSeconds is the timeout bound advertised in payment challenges.
const maxTimeoutSeconds = 600

// Service is the room authority. All operations against one room are
// serialized behind a per-room mutex; operations against different rooms run
// independently.
type Service struct {
	store    storage.Store
	verifier payment.Verifier
	minter   media.Minter
	checkout *token.CheckoutIssuer
	now      func() time.Time

	locks sync.Map // room id -> *sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the room service.
func New(store storage.Store, verifier payment.Verifier, minter media.Minter, checkout *token.CheckoutIssuer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("payment verifier is required")
	}
	if minter == nil {
		return nil, fmt.Errorf("media minter is required")
	}
	if checkout == nil {
		return nil, fmt.Errorf("checkout issuer is required")
	}
	s := &Service{
		store:    store,
		verifier: verifier,
		minter:   minter,
		checkout: checkout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// lockRoom serializes access to one room id. The returned function releases
// the lock.
func (s *Service) lockRoom(roomID string) func() {
	value, _ := s.locks.LoadOrStore(roomID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// startOp begins a traced, serialized operation against one room.
func (s *Service) startOp(ctx context.Context, op, roomID string) (context.Context, trace.Span, func()) {
	ctx, span := otel.Tracer("voice/room").Start(ctx, "room."+op)
	span.SetAttributes(attribute.String("room.id", roomID))
	unlock := s.lockRoom(roomID)
	return ctx, span, unlock
}

// loadRoom fetches a room and runs the schema migration, persisting the
// upgraded record before any handler logic sees it.
func (s *Service) loadRoom(ctx context.Context, roomID string) (domain.RoomMeta, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.RoomMeta{}, apperrors.New(apperrors.CodeRoomNotFound, "room not found")
		}
		return domain.RoomMeta{}, fmt.Errorf("load room: %w", err)
	}
	if room.Migrate() {
		if err := s.store.PutRoom(ctx, room); err != nil {
			return domain.RoomMeta{}, fmt.Errorf("persist migrated room: %w", err)
		}
	}
	return room, nil
}

func (s *Service) saveRoom(ctx context.Context, room domain.RoomMeta) error {
	if err := s.store.PutRoom(ctx, room); err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	return nil
}

// mintAudienceCredential issues a viewer ingress credential scoped to the
// room's access window.
func (s *Service) mintAudienceCredential(room domain.RoomMeta, seed string) (media.Credential, error) {
	cred, err := s.minter.MintCredential(room.ChannelID, media.IngressUID(seed), media.RoleAudience, room.AccessWindow())
	if err != nil {
		return media.Credential{}, apperrors.Wrap(apperrors.CodeMediaProviderFailure, "mint audience credential", err)
	}
	return cred, nil
}

func (s *Service) mintBroadcasterCredential(room domain.RoomMeta, uid uint32) (media.Credential, error) {
	cred, err := s.minter.MintCredential(room.ChannelID, uid, media.RoleBroadcaster, room.AccessWindow())
	if err != nil {
		return media.Credential{}, apperrors.Wrap(apperrors.CodeMediaProviderFailure, "mint broadcaster credential", err)
	}
	return cred, nil
}

// maybePrune opportunistically prunes settlement markers older than the
// retention window. It is gated by the stored last-pruned timestamp so it
// runs at most once per interval regardless of request volume.
func (s *Service) maybePrune(ctx context.Context, room *domain.RoomMeta) {
	now := s.now().Unix()
	if room.LastPrunedAt != 0 && now-room.LastPrunedAt < int64(domain.PruneInterval/time.Second) {
		return
	}
	cutoff := now - int64(domain.MarkerRetention/time.Second)
	// Pruning is best-effort; a failure must not fail the request.
	if _, err := s.store.PruneMarkers(ctx, room.ID, cutoff); err != nil {
		return
	}
	room.LastPrunedAt = now
}
