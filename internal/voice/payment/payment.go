// Package payment implements the x402-style settlement client: claim and
// requirement types plus two interchangeable backends (an in-process mock
// verifier and a remote facilitator HTTP client).
package payment

import (
	"context"
	"encoding/json"
	"fmt"
)

// SchemeExact is the only supported payment scheme.
const SchemeExact = "exact"

// Requirement describes one acceptable payment. Field names follow the
// facilitator wire schema.
type Requirement struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	Asset             string            `json:"asset"`
	PayTo             string            `json:"payTo"`
	Resource          string            `json:"resource"`
	MaxAmountRequired string            `json:"maxAmountRequired"`
	MaxTimeoutSeconds int64             `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// Authorization is the transfer authorization inside a payment claim.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter,omitempty"`
	ValidBefore string `json:"validBefore,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
}

// ClaimPayload carries the signed authorization blob.
type ClaimPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Claim is a payment claim as submitted by a client. The original encoded
// bytes are retained so idempotency hashing sees exactly what the client sent.
type Claim struct {
	X402Version int               `json:"x402Version,omitempty"`
	Scheme      string            `json:"scheme,omitempty"`
	Network     string            `json:"network,omitempty"`
	Payload     ClaimPayload      `json:"payload"`
	Resource    string            `json:"resource,omitempty"`
	Extensions  map[string]string `json:"extensions,omitempty"`

	raw []byte
}

// ParseClaim decodes a claim blob, retaining the raw bytes.
func ParseClaim(raw []byte) (Claim, error) {
	var claim Claim
	if err := json.Unmarshal(raw, &claim); err != nil {
		return Claim{}, fmt.Errorf("decode payment claim: %w", err)
	}
	if claim.Payload.Signature == "" {
		return Claim{}, fmt.Errorf("payment claim is missing payload.signature")
	}
	claim.raw = raw
	return claim, nil
}

// Raw returns the exact bytes the claim was parsed from.
func (c Claim) Raw() []byte {
	return c.raw
}

// CheckoutToken returns the echoed segment-checkout token, if any.
func (c Claim) CheckoutToken() string {
	if c.Extensions == nil {
		return ""
	}
	return c.Extensions["checkout_token"]
}

// Rejection reasons returned inside a Result. These are surfaced to clients
// inside a fresh payment challenge, never as generic server errors.
const (
	ReasonAmountMismatch         = "amount_mismatch"
	ReasonPayeeMismatch          = "payee_mismatch"
	ReasonNetworkMismatch        = "network_mismatch"
	ReasonSchemeMismatch         = "scheme_mismatch"
	ReasonMissingSignature       = "missing_signature"
	ReasonMissingPayer           = "missing_payer"
	ReasonFacilitatorRejected    = "facilitator_rejected"
	ReasonNotExplicitlyConfirmed = "payment_settlement_not_explicitly_confirmed"
)

// Result is a settlement verdict. Settled==false with a Reason is a normal
// rejection; transport failures are returned as errors instead.
type Result struct {
	Settled       bool   `json:"settled"`
	Payer         string `json:"payer,omitempty"`
	TxReference   string `json:"tx_reference,omitempty"`
	FacilitatorID string `json:"facilitator_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Verifier settles a payment claim against a requirement.
type Verifier interface {
	Settle(ctx context.Context, claim Claim, requirement Requirement) (Result, error)
}
