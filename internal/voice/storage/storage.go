// Package storage defines the persistence boundary for room state. All
// records belong to the room actor; nothing else writes them.
package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/duetstage/internal/voice/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store persists room authority records.
type Store interface {
	PutRoom(ctx context.Context, room domain.RoomMeta) error
	GetRoom(ctx context.Context, id string) (domain.RoomMeta, error)

	PutEntitlement(ctx context.Context, entitlement domain.Entitlement) error
	GetEntitlement(ctx context.Context, roomID, wallet string) (domain.Entitlement, error)

	// PutSettlement persists the room record, the wallet's entitlement (nil
	// for anonymous viewers), and the settlement marker as one atomic write:
	// either the full grant commits or none of it does.
	PutSettlement(ctx context.Context, room domain.RoomMeta, entitlement *domain.Entitlement, marker domain.SettleMarker) error
	GetMarker(ctx context.Context, roomID, claimHash string) (domain.SettleMarker, error)
	// PruneMarkers deletes markers settled before the cutoff (unix seconds)
	// and returns how many were removed.
	PruneMarkers(ctx context.Context, roomID string, cutoff int64) (int, error)

	PutGrant(ctx context.Context, grant domain.ReplayGrant) error
	// ConsumeGrant atomically fetches and deletes a grant: the first read
	// wins, every later read gets ErrNotFound.
	ConsumeGrant(ctx context.Context, roomID, tokenHash string) (domain.ReplayGrant, error)
}
