package media

import (
	"testing"
	"time"
)

func TestChannelName(t *testing.T) {
	t.Parallel()

	if got := ChannelName("room1"); got != "duet-room1" {
		t.Fatalf("channel = %q, want %q", got, "duet-room1")
	}
}

func TestIngressUIDStableAndNonzero(t *testing.T) {
	t.Parallel()

	a := IngressUID("0xabc/host")
	if a != IngressUID("0xabc/host") {
		t.Fatal("expected stable uid for same seed")
	}
	if a == 0 {
		t.Fatal("uid must be nonzero")
	}
	if a == IngressUID("0xabc/guest") {
		t.Fatal("expected different uids for different seeds")
	}
}

func TestLocalMinterMintsTimeBoxedCredential(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	minter := LocalMinter{AppID: "app", Key: []byte("k"), Now: func() time.Time { return now }}

	cred, err := minter.MintCredential("duet-room1", 42, RoleBroadcaster, 30*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if cred.ExpiresAt != now.Add(30*time.Minute).Unix() {
		t.Fatalf("expires = %d", cred.ExpiresAt)
	}
	if cred.Token == "" || cred.Channel != "duet-room1" || cred.UID != 42 {
		t.Fatalf("credential = %+v", cred)
	}

	// Same inputs mint the same token; different roles do not.
	again, _ := minter.MintCredential("duet-room1", 42, RoleBroadcaster, 30*time.Minute)
	if again.Token != cred.Token {
		t.Fatal("expected deterministic token")
	}
	audience, _ := minter.MintCredential("duet-room1", 42, RoleAudience, 30*time.Minute)
	if audience.Token == cred.Token {
		t.Fatal("expected role to affect token")
	}
}

func TestLocalMinterRequiresKeyAndChannel(t *testing.T) {
	t.Parallel()

	if _, err := (LocalMinter{}).MintCredential("c", 1, RoleAudience, time.Minute); err == nil {
		t.Fatal("expected error without key")
	}
	if _, err := (LocalMinter{Key: []byte("k")}).MintCredential("", 1, RoleAudience, time.Minute); err == nil {
		t.Fatal("expected error without channel")
	}
}
