package bbolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/louisbranch/duetstage/internal/voice/domain"
	"github.com/louisbranch/duetstage/internal/voice/storage"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "voice.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRoomRoundTrip(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	room := domain.RoomMeta{ID: "room1", Status: domain.RoomCreated, LiveAmount: "100000"}
	if err := store.PutRoom(ctx, room); err != nil {
		t.Fatalf("put room: %v", err)
	}
	got, err := store.GetRoom(ctx, "room1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.LiveAmount != "100000" || got.Status != domain.RoomCreated {
		t.Fatalf("got %+v", got)
	}

	if _, err := store.GetRoom(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestEntitlementScopedByRoomAndWallet(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	if err := store.PutEntitlement(ctx, domain.Entitlement{RoomID: "room1", Wallet: "0xaa", LiveExpiresAt: 50}); err != nil {
		t.Fatalf("put entitlement: %v", err)
	}
	if err := store.PutEntitlement(ctx, domain.Entitlement{RoomID: "room2", Wallet: "0xaa", LiveExpiresAt: 99}); err != nil {
		t.Fatalf("put entitlement: %v", err)
	}

	got, err := store.GetEntitlement(ctx, "room1", "0xaa")
	if err != nil {
		t.Fatalf("get entitlement: %v", err)
	}
	if got.LiveExpiresAt != 50 {
		t.Fatalf("expiry = %d, want 50", got.LiveExpiresAt)
	}
	if _, err := store.GetEntitlement(ctx, "room1", "0xbb"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestPruneMarkersDeletesOnlyOldOnes(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	markers := []domain.SettleMarker{
		{RoomID: "room1", ClaimHash: "old", SettledAt: 100},
		{RoomID: "room1", ClaimHash: "new", SettledAt: 900},
		{RoomID: "room2", ClaimHash: "other", SettledAt: 100},
	}
	for _, marker := range markers {
		if err := store.PutSettlement(ctx, domain.RoomMeta{ID: marker.RoomID}, nil, marker); err != nil {
			t.Fatalf("put settlement: %v", err)
		}
	}

	pruned, err := store.PruneMarkers(ctx, "room1", 500)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}
	if _, err := store.GetMarker(ctx, "room1", "old"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("old marker still present: %v", err)
	}
	if _, err := store.GetMarker(ctx, "room1", "new"); err != nil {
		t.Fatalf("new marker missing: %v", err)
	}
	if _, err := store.GetMarker(ctx, "room2", "other"); err != nil {
		t.Fatalf("other room's marker missing: %v", err)
	}
}

func TestPutSettlementWritesAllRecordsTogether(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	room := domain.RoomMeta{ID: "room1", Status: domain.RoomLive}
	ent := domain.Entitlement{RoomID: "room1", Wallet: "0xaa", LiveExpiresAt: 500}
	marker := domain.SettleMarker{RoomID: "room1", ClaimHash: "claim", Wallet: "0xaa", ExpiresAt: 500}
	if err := store.PutSettlement(ctx, room, &ent, marker); err != nil {
		t.Fatalf("put settlement: %v", err)
	}

	gotRoom, err := store.GetRoom(ctx, "room1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if gotRoom.Status != domain.RoomLive {
		t.Fatalf("room status = %q", gotRoom.Status)
	}
	gotEnt, err := store.GetEntitlement(ctx, "room1", "0xaa")
	if err != nil {
		t.Fatalf("get entitlement: %v", err)
	}
	if gotEnt.LiveExpiresAt != 500 {
		t.Fatalf("entitlement expiry = %d, want 500", gotEnt.LiveExpiresAt)
	}
	gotMarker, err := store.GetMarker(ctx, "room1", "claim")
	if err != nil {
		t.Fatalf("get marker: %v", err)
	}
	if gotMarker.Wallet != "0xaa" {
		t.Fatalf("marker wallet = %q", gotMarker.Wallet)
	}

	if err := store.PutSettlement(ctx, domain.RoomMeta{}, nil, marker); err == nil {
		t.Fatal("expected error for missing room id")
	}
	if err := store.PutSettlement(ctx, room, &domain.Entitlement{RoomID: "room1"}, marker); err == nil {
		t.Fatal("expected error for entitlement without wallet")
	}
	if err := store.PutSettlement(ctx, room, nil, domain.SettleMarker{RoomID: "room1"}); err == nil {
		t.Fatal("expected error for marker without claim hash")
	}
}

func TestConsumeGrantIsOneTime(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	grant := domain.ReplayGrant{RoomID: "room1", TokenHash: "hash", MediaURL: "https://cdn.example/replay.m3u8"}
	if err := store.PutGrant(ctx, grant); err != nil {
		t.Fatalf("put grant: %v", err)
	}

	got, err := store.ConsumeGrant(ctx, "room1", "hash")
	if err != nil {
		t.Fatalf("consume grant: %v", err)
	}
	if got.MediaURL != grant.MediaURL {
		t.Fatalf("media url = %q", got.MediaURL)
	}

	if _, err := store.ConsumeGrant(ctx, "room1", "hash"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second consume error = %v, want ErrNotFound", err)
	}
}
