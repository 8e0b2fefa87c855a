package payment

import (
	"context"
	"testing"
)

const (
	testPayer = "0xAbCdEf0123456789abcdef0123456789abcdef01"
	testPayee = "0x1111111111111111111111111111111111111111"
)

func validClaim() Claim {
	return Claim{
		Scheme:  SchemeExact,
		Network: "base-sepolia",
		Payload: ClaimPayload{
			Signature: "0xsig",
			Authorization: Authorization{
				From:  testPayer,
				To:    testPayee,
				Value: "100000",
			},
		},
	}
}

func validRequirement() Requirement {
	return Requirement{
		Scheme:            SchemeExact,
		Network:           "base-sepolia",
		Asset:             "0x2222222222222222222222222222222222222222",
		PayTo:             testPayee,
		MaxAmountRequired: "100000",
	}
}

func TestMockSettleSuccess(t *testing.T) {
	t.Parallel()

	result, err := Mock{}.Settle(context.Background(), validClaim(), validRequirement())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !result.Settled {
		t.Fatalf("expected settlement, got rejection %q", result.Reason)
	}
	if result.Payer != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Fatalf("payer = %q, want lowercase claim sender", result.Payer)
	}
	if result.TxReference == "" {
		t.Fatal("expected a tx reference")
	}
}

func TestMockSettleRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Claim)
		reason string
	}{
		{"amount mismatch", func(c *Claim) { c.Payload.Authorization.Value = "100001" }, ReasonAmountMismatch},
		{"amount not byte-exact", func(c *Claim) { c.Payload.Authorization.Value = "0100000" }, ReasonAmountMismatch},
		{"payee mismatch", func(c *Claim) { c.Payload.Authorization.To = "0x3333333333333333333333333333333333333333" }, ReasonPayeeMismatch},
		{"network mismatch", func(c *Claim) { c.Network = "base" }, ReasonNetworkMismatch},
		{"scheme mismatch", func(c *Claim) { c.Scheme = "stream" }, ReasonSchemeMismatch},
		{"missing signature", func(c *Claim) { c.Payload.Signature = "" }, ReasonMissingSignature},
		{"bad payer", func(c *Claim) { c.Payload.Authorization.From = "nope" }, ReasonMissingPayer},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			claim := validClaim()
			tc.mutate(&claim)
			result, err := Mock{}.Settle(context.Background(), claim, validRequirement())
			if err != nil {
				t.Fatalf("settle: %v", err)
			}
			if result.Settled {
				t.Fatal("expected rejection")
			}
			if result.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", result.Reason, tc.reason)
			}
		})
	}
}

func TestMockSettlePayeeCaseInsensitive(t *testing.T) {
	t.Parallel()

	claim := validClaim()
	claim.Payload.Authorization.To = "0x1111111111111111111111111111111111111111"
	requirement := validRequirement()
	requirement.PayTo = "0X1111111111111111111111111111111111111111"

	result, err := Mock{}.Settle(context.Background(), claim, requirement)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !result.Settled {
		t.Fatalf("expected settlement, got %q", result.Reason)
	}
}
