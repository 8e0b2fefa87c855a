package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
)

func TestFacilitatorSettleSuccess(t *testing.T) {
	t.Parallel()

	var captured settleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/settle" {
			t.Errorf("path = %q, want /settle", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":     true,
			"payer":       testPayer,
			"transaction": "0xtx",
		})
	}))
	defer server.Close()

	f, err := NewFacilitator(server.URL, "sekrit")
	if err != nil {
		t.Fatalf("new facilitator: %v", err)
	}
	requirement := validRequirement()
	requirement.Network = "eip155:84532"

	result, err := f.Settle(context.Background(), validClaim(), requirement)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !result.Settled {
		t.Fatalf("expected settlement, got %q", result.Reason)
	}
	if result.Payer != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Fatalf("payer = %q", result.Payer)
	}
	if result.TxReference != "0xtx" {
		t.Fatalf("tx = %q", result.TxReference)
	}

	// The network is remapped on the wire but the caller's requirement object
	// keeps the CAIP identifier.
	if captured.PaymentRequirements.Network != "base-sepolia" {
		t.Fatalf("wire network = %q, want base-sepolia", captured.PaymentRequirements.Network)
	}
	if requirement.Network != "eip155:84532" {
		t.Fatalf("caller requirement mutated to %q", requirement.Network)
	}
}

func TestFacilitatorAmbiguousSuccessIsFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// 200 with no explicit success flag.
		_ = json.NewEncoder(w).Encode(map[string]any{"payer": testPayer, "transaction": "0xtx"})
	}))
	defer server.Close()

	f, _ := NewFacilitator(server.URL, "")
	result, err := f.Settle(context.Background(), validClaim(), validRequirement())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Settled {
		t.Fatal("expected ambiguous response to be treated as failure")
	}
	if result.Reason != ReasonNotExplicitlyConfirmed {
		t.Fatalf("reason = %q, want %q", result.Reason, ReasonNotExplicitlyConfirmed)
	}
}

func TestFacilitatorExplicitFalse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "errorReason": "insufficient_funds"})
	}))
	defer server.Close()

	f, _ := NewFacilitator(server.URL, "")
	result, err := f.Settle(context.Background(), validClaim(), validRequirement())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Settled {
		t.Fatal("expected rejection")
	}
	if result.Reason != "insufficient_funds" {
		t.Fatalf("reason = %q", result.Reason)
	}
}

func TestFacilitatorErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "invalid_request_parse"}})
	}))
	defer server.Close()

	f, _ := NewFacilitator(server.URL, "")
	result, err := f.Settle(context.Background(), validClaim(), validRequirement())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Settled {
		t.Fatal("expected rejection")
	}
	if result.Reason != "invalid_request_parse" {
		t.Fatalf("reason = %q", result.Reason)
	}
}

func TestFacilitatorUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // immediately, so the address refuses connections

	f, _ := NewFacilitator(server.URL, "")
	_, err := f.Settle(context.Background(), validClaim(), validRequirement())
	if !apperrors.IsCode(err, apperrors.CodeFacilitatorUnreachable) {
		t.Fatalf("error = %v, want facilitator_unreachable", err)
	}
}

func TestNewFacilitatorRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewFacilitator("  ", ""); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
