// Package media is the boundary to the external real-time media provider.
// Minting a credential is a pure function of channel name and numeric
// identity; the provider itself is opaque to the room authority.
package media

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"
)

// Role selects the capability a credential carries on the media channel.
type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleAudience    Role = "audience"
)

// Credential is a time-boxed media-provider credential.
type Credential struct {
	Token     string `json:"token"`
	Channel   string `json:"channel"`
	UID       uint32 `json:"uid"`
	ExpiresAt int64  `json:"expires_at"`
}

// Minter mints media-provider credentials.
type Minter interface {
	MintCredential(channel string, uid uint32, role Role, ttl time.Duration) (Credential, error)
}

// ChannelName derives the provider channel for a room.
func ChannelName(roomID string) string {
	return "duet-" + roomID
}

// IngressUID derives a stable nonzero numeric identity from a seed such as a
// wallet address or seat name.
func IngressUID(seed string) uint32 {
	sum := sha256.Sum256([]byte(seed))
	uid := binary.BigEndian.Uint32(sum[:4])
	if uid == 0 {
		uid = 1
	}
	return uid
}

// LocalMinter mints deterministic HMAC-authenticated credentials. It stands in
// for the provider SDK in development and tests; the wire shape matches what
// handlers return in production.
type LocalMinter struct {
	AppID string
	Key   []byte
	Now   func() time.Time
}

// MintCredential issues a credential for the channel and identity.
func (m LocalMinter) MintCredential(channel string, uid uint32, role Role, ttl time.Duration) (Credential, error) {
	if len(m.Key) == 0 {
		return Credential{}, fmt.Errorf("media provider key is required")
	}
	if channel == "" {
		return Credential{}, fmt.Errorf("channel is required")
	}
	now := m.Now
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	expiresAt := now().Add(ttl).Unix()

	mac := hmac.New(sha256.New, m.Key)
	fmt.Fprintf(mac, "%s|%s|%d|%s|%d", m.AppID, channel, uid, role, expiresAt)
	token := m.AppID + "." + strconv.FormatInt(expiresAt, 10) + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return Credential{
		Token:     token,
		Channel:   channel,
		UID:       uid,
		ExpiresAt: expiresAt,
	}, nil
}
