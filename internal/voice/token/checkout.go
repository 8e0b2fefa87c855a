package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
)

// CheckoutClaims binds a payment challenge to the segment it was priced
// against, so settlement can verify which price the client saw even after the
// room's current segment has advanced.
type CheckoutClaims struct {
	RoomID    string
	SegmentID string
	ExpiresAt time.Time
}

// checkoutClaims is the internal claims type used for JWT parsing.
type checkoutClaims struct {
	jwt.RegisteredClaims
	RoomID    string `json:"room_id"`
	SegmentID string `json:"segment_id"`
}

// CheckoutIssuer mints and verifies segment-checkout tokens.
type CheckoutIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewCheckoutIssuer constructs an issuer from an HMAC secret.
func NewCheckoutIssuer(key []byte, ttl time.Duration, now func() time.Time) (*CheckoutIssuer, error) {
	if len(key) == 0 {
		return nil, errors.New("checkout signing key is required")
	}
	if ttl <= 0 {
		return nil, errors.New("checkout token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &CheckoutIssuer{key: key, ttl: ttl, now: now}, nil
}

// Mint signs a checkout token for the given room and segment.
func (i *CheckoutIssuer) Mint(roomID, segmentID string) (string, error) {
	now := i.now().UTC()
	claims := checkoutClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		RoomID:    roomID,
		SegmentID: segmentID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify parses a checkout token and validates it against the expected room.
func (i *CheckoutIssuer) Verify(tokenString, roomID string) (CheckoutClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return CheckoutClaims{}, apperrors.New(apperrors.CodeSegmentCheckoutRequired, "checkout token is required")
	}

	var parsed checkoutClaims
	_, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return CheckoutClaims{}, apperrors.New(apperrors.CodeSegmentCheckoutRequired, "checkout token is expired")
		}
		return CheckoutClaims{}, apperrors.Wrap(apperrors.CodeSegmentCheckoutRequired, "checkout token is invalid", err)
	}

	if parsed.RoomID == "" || parsed.RoomID != roomID {
		return CheckoutClaims{}, apperrors.WithMetadata(
			apperrors.CodeSegmentCheckoutMismatch,
			"checkout token room mismatch",
			map[string]string{"room_id": parsed.RoomID},
		)
	}
	if parsed.SegmentID == "" {
		return CheckoutClaims{}, apperrors.New(apperrors.CodeSegmentCheckoutRequired, "checkout token segment is required")
	}

	claims := CheckoutClaims{
		RoomID:    parsed.RoomID,
		SegmentID: parsed.SegmentID,
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}
	return claims, nil
}
