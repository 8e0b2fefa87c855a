// Package bbolt provides a BoltDB-backed room store.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/louisbranch/duetstage/internal/voice/domain"
	"github.com/louisbranch/duetstage/internal/voice/storage"
)

const (
	roomBucket        = "room"
	entitlementBucket = "entitlement"
	markerBucket      = "marker"
	grantBucket       = "grant"
)

// Store provides a BoltDB-backed implementation of storage.Store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutRoom persists a room record.
func (s *Store) PutRoom(ctx context.Context, room domain.RoomMeta) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(room.ID) == "" {
		return fmt.Errorf("room id is required")
	}
	return s.put(roomBucket, []byte(room.ID), room)
}

// GetRoom fetches a room record by id.
func (s *Store) GetRoom(ctx context.Context, id string) (domain.RoomMeta, error) {
	var room domain.RoomMeta
	if err := s.ready(ctx); err != nil {
		return room, err
	}
	if strings.TrimSpace(id) == "" {
		return room, fmt.Errorf("room id is required")
	}
	err := s.get(roomBucket, []byte(id), &room)
	return room, err
}

// PutEntitlement persists a wallet's entitlement record.
func (s *Store) PutEntitlement(ctx context.Context, entitlement domain.Entitlement) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if entitlement.RoomID == "" || entitlement.Wallet == "" {
		return fmt.Errorf("entitlement room id and wallet are required")
	}
	return s.put(entitlementBucket, scopedKey(entitlement.RoomID, entitlement.Wallet), entitlement)
}

// GetEntitlement fetches one wallet's entitlement in one room.
func (s *Store) GetEntitlement(ctx context.Context, roomID, wallet string) (domain.Entitlement, error) {
	var entitlement domain.Entitlement
	if err := s.ready(ctx); err != nil {
		return entitlement, err
	}
	err := s.get(entitlementBucket, scopedKey(roomID, wallet), &entitlement)
	return entitlement, err
}

// PutSettlement writes the room record, the entitlement (when present), and
// the settlement marker in a single transaction.
func (s *Store) PutSettlement(ctx context.Context, room domain.RoomMeta, entitlement *domain.Entitlement, marker domain.SettleMarker) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(room.ID) == "" {
		return fmt.Errorf("room id is required")
	}
	if marker.RoomID == "" || marker.ClaimHash == "" {
		return fmt.Errorf("marker room id and claim hash are required")
	}
	if entitlement != nil && (entitlement.RoomID == "" || entitlement.Wallet == "") {
		return fmt.Errorf("entitlement room id and wallet are required")
	}

	roomPayload, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", roomBucket, err)
	}
	markerPayload, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", markerBucket, err)
	}
	var entPayload []byte
	if entitlement != nil {
		entPayload, err = json.Marshal(*entitlement)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", entitlementBucket, err)
		}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := putIn(tx, roomBucket, []byte(room.ID), roomPayload); err != nil {
			return err
		}
		if entPayload != nil {
			if err := putIn(tx, entitlementBucket, scopedKey(entitlement.RoomID, entitlement.Wallet), entPayload); err != nil {
				return err
			}
		}
		return putIn(tx, markerBucket, scopedKey(marker.RoomID, marker.ClaimHash), markerPayload)
	})
}

// GetMarker fetches a settlement marker by claim hash.
func (s *Store) GetMarker(ctx context.Context, roomID, claimHash string) (domain.SettleMarker, error) {
	var marker domain.SettleMarker
	if err := s.ready(ctx); err != nil {
		return marker, err
	}
	err := s.get(markerBucket, scopedKey(roomID, claimHash), &marker)
	return marker, err
}

// PruneMarkers deletes a room's markers settled before the cutoff.
func (s *Store) PruneMarkers(ctx context.Context, roomID string, cutoff int64) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	prefix := []byte(roomID + "/")
	pruned := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(markerBucket))
		if bucket == nil {
			return fmt.Errorf("marker bucket is missing")
		}
		cursor := bucket.Cursor()
		for key, value := cursor.Seek(prefix); key != nil && strings.HasPrefix(string(key), string(prefix)); key, value = cursor.Next() {
			var marker domain.SettleMarker
			if err := json.Unmarshal(value, &marker); err != nil {
				return fmt.Errorf("unmarshal marker: %w", err)
			}
			if marker.SettledAt < cutoff {
				if err := cursor.Delete(); err != nil {
					return fmt.Errorf("delete marker: %w", err)
				}
				pruned++
			}
		}
		return nil
	})
	return pruned, err
}

// PutGrant persists a replay access grant.
func (s *Store) PutGrant(ctx context.Context, grant domain.ReplayGrant) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if grant.RoomID == "" || grant.TokenHash == "" {
		return fmt.Errorf("grant room id and token hash are required")
	}
	return s.put(grantBucket, scopedKey(grant.RoomID, grant.TokenHash), grant)
}

// ConsumeGrant fetches and deletes a grant in one transaction.
func (s *Store) ConsumeGrant(ctx context.Context, roomID, tokenHash string) (domain.ReplayGrant, error) {
	var grant domain.ReplayGrant
	if err := s.ready(ctx); err != nil {
		return grant, err
	}
	key := scopedKey(roomID, tokenHash)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(grantBucket))
		if bucket == nil {
			return fmt.Errorf("grant bucket is missing")
		}
		payload := bucket.Get(key)
		if payload == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(payload, &grant); err != nil {
			return fmt.Errorf("unmarshal grant: %w", err)
		}
		return bucket.Delete(key)
	})
	return grant, err
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) put(bucketName string, key []byte, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", bucketName, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putIn(tx, bucketName, key, payload)
	})
}

func putIn(tx *bbolt.Tx, bucketName string, key, payload []byte) error {
	bucket := tx.Bucket([]byte(bucketName))
	if bucket == nil {
		return fmt.Errorf("%s bucket is missing", bucketName)
	}
	return bucket.Put(key, payload)
}

func (s *Store) get(bucketName string, key []byte, record any) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return fmt.Errorf("%s bucket is missing", bucketName)
		}
		payload := bucket.Get(key)
		if payload == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(payload, record); err != nil {
			return fmt.Errorf("unmarshal %s record: %w", bucketName, err)
		}
		return nil
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{roomBucket, entitlementBucket, markerBucket, grantBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func scopedKey(roomID, suffix string) []byte {
	return []byte(roomID + "/" + suffix)
}
