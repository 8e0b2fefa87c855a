package voice

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("voice", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DBPath != "voice.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.FacilitatorURL != "" {
		t.Fatalf("expected empty facilitator url, got %q", cfg.FacilitatorURL)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("voice", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-port", "9001", "-db", "/tmp/rooms.db", "-facilitator", "https://settle.example"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", cfg.Port)
	}
	if cfg.DBPath != "/tmp/rooms.db" {
		t.Fatalf("expected db override, got %q", cfg.DBPath)
	}
	if cfg.FacilitatorURL != "https://settle.example" {
		t.Fatalf("expected facilitator override, got %q", cfg.FacilitatorURL)
	}
}

func TestDecodeKey(t *testing.T) {
	if _, err := decodeKey("", "KEY"); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := decodeKey("zz", "KEY"); err == nil {
		t.Fatal("expected error for non-hex key")
	}
	key, err := decodeKey("00ff", "KEY")
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	if len(key) != 2 {
		t.Fatalf("key length = %d, want 2", len(key))
	}
}
