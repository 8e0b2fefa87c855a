package payment

import (
	"context"
	"strings"

	"github.com/louisbranch/duetstage/internal/voice/domain"
)

// Mock is an in-process verifier that settles by pure field comparison.
// It backs local development and tests; nothing leaves the process.
type Mock struct {
	// FacilitatorID is echoed into results so callers can tell mock
	// settlements apart from real ones.
	FacilitatorID string
}

// Settle compares the claim against the requirement field by field. Amounts
// are compared byte-for-byte; addresses case-insensitively.
func (m Mock) Settle(_ context.Context, claim Claim, requirement Requirement) (Result, error) {
	facilitator := m.FacilitatorID
	if facilitator == "" {
		facilitator = "mock"
	}
	reject := func(reason string) (Result, error) {
		return Result{Settled: false, Reason: reason, FacilitatorID: facilitator}, nil
	}

	if claim.Payload.Signature == "" {
		return reject(ReasonMissingSignature)
	}
	if claim.Scheme != "" && claim.Scheme != requirement.Scheme {
		return reject(ReasonSchemeMismatch)
	}
	if claim.Network != "" && claim.Network != requirement.Network {
		return reject(ReasonNetworkMismatch)
	}
	if claim.Payload.Authorization.Value != requirement.MaxAmountRequired {
		return reject(ReasonAmountMismatch)
	}
	if !domain.EqualAddress(claim.Payload.Authorization.To, requirement.PayTo) {
		return reject(ReasonPayeeMismatch)
	}

	payer, err := domain.NormalizeWallet(claim.Payload.Authorization.From)
	if err != nil {
		return reject(ReasonMissingPayer)
	}

	return Result{
		Settled:       true,
		Payer:         payer,
		TxReference:   "mock:" + shortSignature(claim.Payload.Signature),
		FacilitatorID: facilitator,
	}, nil
}

func shortSignature(signature string) string {
	signature = strings.TrimPrefix(signature, "0x")
	if len(signature) > 16 {
		return signature[:16]
	}
	return signature
}
