// Package voice parses voice command flags and starts the room authority
// HTTP service.
package voice

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	entrypoint "github.com/louisbranch/duetstage/internal/platform/cmd"
	"github.com/louisbranch/duetstage/internal/voice/api/httpapi"
	"github.com/louisbranch/duetstage/internal/voice/media"
	"github.com/louisbranch/duetstage/internal/voice/payment"
	"github.com/louisbranch/duetstage/internal/voice/room"
	bboltstore "github.com/louisbranch/duetstage/internal/voice/storage/bbolt"
	"github.com/louisbranch/duetstage/internal/voice/token"
)

const checkoutTokenTTL = 10 * time.Minute

// Config holds voice command configuration. Key material is hex-encoded.
type Config struct {
	Port             int    `env:"DUETSTAGE_VOICE_PORT" envDefault:"8080"`
	Addr             string `env:"DUETSTAGE_VOICE_ADDR"`
	DBPath           string `env:"DUETSTAGE_VOICE_DB_PATH" envDefault:"voice.db"`
	CheckoutSecret   string `env:"DUETSTAGE_CHECKOUT_SECRET"`
	AuthPublicKey    string `env:"DUETSTAGE_AUTH_PUBLIC_KEY"`
	FacilitatorURL   string `env:"DUETSTAGE_FACILITATOR_URL"`
	FacilitatorToken string `env:"DUETSTAGE_FACILITATOR_TOKEN"`
	MediaAppID       string `env:"DUETSTAGE_MEDIA_APP_ID" envDefault:"duetstage"`
	MediaKey         string `env:"DUETSTAGE_MEDIA_KEY"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The voice server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The voice server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the room state database")
	fs.StringVar(&cfg.FacilitatorURL, "facilitator", cfg.FacilitatorURL, "Settlement facilitator base URL (empty runs the mock verifier)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the voice room authority service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceVoice, func(ctx context.Context) error {
		return serve(ctx, cfg)
	})
}

func serve(ctx context.Context, cfg Config) error {
	checkoutKey, err := decodeKey(cfg.CheckoutSecret, "DUETSTAGE_CHECKOUT_SECRET")
	if err != nil {
		return err
	}
	mediaKey, err := decodeKey(cfg.MediaKey, "DUETSTAGE_MEDIA_KEY")
	if err != nil {
		return err
	}
	authKey, err := decodeKey(cfg.AuthPublicKey, "DUETSTAGE_AUTH_PUBLIC_KEY")
	if err != nil {
		return err
	}
	if len(authKey) != ed25519.PublicKeySize {
		return errors.New("DUETSTAGE_AUTH_PUBLIC_KEY must decode to 32 bytes")
	}

	store, err := bboltstore.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	var verifier payment.Verifier = payment.Mock{}
	if cfg.FacilitatorURL != "" {
		facilitator, err := payment.NewFacilitator(cfg.FacilitatorURL, cfg.FacilitatorToken)
		if err != nil {
			return err
		}
		verifier = facilitator
	} else {
		log.Printf("no facilitator configured; settling with the mock verifier")
	}

	issuer, err := token.NewCheckoutIssuer(checkoutKey, checkoutTokenTTL, nil)
	if err != nil {
		return err
	}
	minter := media.LocalMinter{AppID: cfg.MediaAppID, Key: mediaKey}

	rooms, err := room.New(store, verifier, minter, issuer)
	if err != nil {
		return err
	}
	auth, err := httpapi.NewAuthenticator(ed25519.PublicKey(authKey))
	if err != nil {
		return err
	}

	addr := cfg.Addr
	if addr == "" {
		addr = net.JoinHostPort("", strconv.Itoa(cfg.Port))
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           httpapi.New(rooms, auth, log.Default()).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func decodeKey(value, name string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s must be hex-encoded: %w", name, err)
	}
	return key, nil
}
