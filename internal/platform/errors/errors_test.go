package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("boom")
	err := Wrap(CodeInternal, "wrapped", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to match errors.Is")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("outer: %w", New(CodePaymentSignatureReused, "claim reused"))
	if !stderrors.Is(err, New(CodePaymentSignatureReused, "")) {
		t.Fatal("expected code match through wrapping")
	}
	if stderrors.Is(err, New(CodeForbidden, "")) {
		t.Fatal("expected no match for different code")
	}
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	if got := GetCode(New(CodeRoomNotLive, "not live")); got != CodeRoomNotLive {
		t.Fatalf("GetCode = %q, want %q", got, CodeRoomNotLive)
	}
	if got := GetCode(stderrors.New("plain")); got != CodeInternal {
		t.Fatalf("GetCode = %q, want %q", got, CodeInternal)
	}
}

func TestGetMetadata(t *testing.T) {
	t.Parallel()

	err := WithMetadata(CodeSegmentCheckoutMismatch, "segment moved", map[string]string{"segment_id": "seg-2"})
	meta := GetMetadata(fmt.Errorf("outer: %w", err))
	if meta["segment_id"] != "seg-2" {
		t.Fatalf("metadata segment_id = %q, want %q", meta["segment_id"], "seg-2")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidAmount, http.StatusBadRequest},
		{CodeUnauthenticated, http.StatusUnauthorized},
		{CodeGuestRevoked, http.StatusForbidden},
		{CodeRoomNotFound, http.StatusNotFound},
		{CodePaymentRequired, http.StatusPaymentRequired},
		{CodeSegmentCheckoutMismatch, http.StatusPaymentRequired},
		{CodePaymentSignatureReused, http.StatusConflict},
		{CodePaymentSignatureAlreadyConsumed, http.StatusConflict},
		{CodeReplayTokenInvalid, http.StatusGone},
		{CodeFacilitatorUnreachable, http.StatusBadGateway},
		{CodeInternal, http.StatusInternalServerError},
		{Code("unmapped"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("HTTPStatus(%q) = %d, want %d", tc.code, got, tc.want)
		}
	}
}
