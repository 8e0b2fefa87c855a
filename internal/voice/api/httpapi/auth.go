package httpapi

import (
	"crypto/ed25519"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
	"github.com/louisbranch/duetstage/internal/voice/domain"
)

// Authenticator verifies wallet-bearing bearer tokens minted by the outer
// platform. Tokens are EdDSA-signed JWTs carrying a wallet claim.
type Authenticator struct {
	key ed25519.PublicKey
	now func() time.Time
}

// NewAuthenticator constructs an authenticator from the platform's public key.
func NewAuthenticator(key ed25519.PublicKey) (*Authenticator, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "auth public key must be a 32-byte ed25519 key")
	}
	return &Authenticator{key: key, now: time.Now}, nil
}

type walletClaims struct {
	jwt.RegisteredClaims
	Wallet string `json:"wallet"`
}

// Wallet extracts and verifies the caller's wallet from the Authorization
// header. A missing header returns an empty wallet and no error; an invalid
// token is always an error.
func (a *Authenticator) Wallet(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", nil
	}
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "authorization must use the bearer scheme")
	}

	var claims walletClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return a.key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnauthenticated, "bearer token is invalid", err)
	}

	wallet, err := domain.NormalizeWallet(claims.Wallet)
	if err != nil {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "bearer token wallet claim is invalid")
	}
	return wallet, nil
}
