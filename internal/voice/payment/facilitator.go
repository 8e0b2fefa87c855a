package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
)

// defaultSettleTimeout bounds the facilitator call so a slow facilitator can
// never hang a room's serialized queue.
const defaultSettleTimeout = 20 * time.Second

// networkAliases remaps CAIP-style network identifiers to the legacy names
// the facilitator expects.
var networkAliases = map[string]string{
	"eip155:8453":  "base",
	"eip155:84532": "base-sepolia",
}

// Facilitator settles claims against a remote x402 facilitator over HTTP.
type Facilitator struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewFacilitator constructs a facilitator client.
func NewFacilitator(baseURL, authToken string) (*Facilitator, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("facilitator base url is required")
	}
	return &Facilitator{
		baseURL:   baseURL,
		authToken: authToken,
		client:    &http.Client{Timeout: defaultSettleTimeout},
	}, nil
}

// settleRequest is the facilitator /settle wire schema.
type settleRequest struct {
	X402Version         int         `json:"x402Version"`
	PaymentPayload      Claim       `json:"paymentPayload"`
	PaymentRequirements Requirement `json:"paymentRequirements"`
}

// settleResponse holds the fields we accept from a facilitator. Success must
// be an explicit boolean; an HTTP 200 alone proves nothing.
type settleResponse struct {
	Success     *bool  `json:"success,omitempty"`
	Settled     *bool  `json:"settled,omitempty"`
	Payer       string `json:"payer,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	Network     string `json:"network,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
	Error       *struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

// Settle posts the claim and requirement to the facilitator. Rejections come
// back inside the Result; only transport failures are errors.
func (f *Facilitator) Settle(ctx context.Context, claim Claim, requirement Requirement) (Result, error) {
	ctx, span := otel.Tracer("voice/payment").Start(ctx, "facilitator.settle")
	defer span.End()
	span.SetAttributes(attribute.String("payment.network", requirement.Network))

	version := claim.X402Version
	if version == 0 {
		version = 1
	}
	body, err := json.Marshal(settleRequest{
		X402Version:         version,
		PaymentPayload:      claim,
		PaymentRequirements: remapNetwork(requirement),
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode settle request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultSettleTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build settle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.authToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeFacilitatorUnreachable, "facilitator settle call failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeFacilitatorUnreachable, "read facilitator response", err)
	}

	var parsed settleResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeFacilitatorUnreachable, "decode facilitator response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := ReasonFacilitatorRejected
		if parsed.Error != nil && parsed.Error.Code != "" {
			reason = parsed.Error.Code
		} else if parsed.ErrorReason != "" {
			reason = parsed.ErrorReason
		}
		return Result{Settled: false, Reason: reason, FacilitatorID: f.baseURL}, nil
	}

	// Require an unambiguous success signal. A 200 with neither field set is
	// treated as a failure, not a settlement.
	confirmed := parsed.Success
	if confirmed == nil {
		confirmed = parsed.Settled
	}
	if confirmed == nil {
		return Result{Settled: false, Reason: ReasonNotExplicitlyConfirmed, FacilitatorID: f.baseURL}, nil
	}
	if !*confirmed {
		reason := parsed.ErrorReason
		if reason == "" {
			reason = ReasonFacilitatorRejected
		}
		return Result{Settled: false, Reason: reason, FacilitatorID: f.baseURL}, nil
	}

	tx := parsed.Transaction
	if tx == "" {
		tx = parsed.TxHash
	}
	return Result{
		Settled:       true,
		Payer:         strings.ToLower(strings.TrimSpace(parsed.Payer)),
		TxReference:   tx,
		FacilitatorID: f.baseURL,
	}, nil
}

// remapNetwork rewrites the network identifier on a copy of the requirement.
// The caller's requirement is the one hashed for idempotency bookkeeping and
// must never be mutated.
func remapNetwork(requirement Requirement) Requirement {
	if alias, ok := networkAliases[requirement.Network]; ok {
		requirement.Network = alias
	}
	return requirement
}
