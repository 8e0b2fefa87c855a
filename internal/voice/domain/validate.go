package domain

import (
	"strings"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
)

// NormalizeWallet validates a 0x-prefixed 20-byte hex address and returns it
// lowercased. Addresses compare case-insensitively; lowering once at the edge
// keeps every later comparison exact.
func NormalizeWallet(wallet string) (string, error) {
	wallet = strings.TrimSpace(wallet)
	if len(wallet) != 42 || !strings.HasPrefix(wallet, "0x") {
		return "", apperrors.New(apperrors.CodeInvalidWallet, "wallet must be a 0x-prefixed 20-byte hex address")
	}
	for _, r := range wallet[2:] {
		if !isHex(r) {
			return "", apperrors.New(apperrors.CodeInvalidWallet, "wallet contains non-hex characters")
		}
	}
	return strings.ToLower(wallet), nil
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// ValidateAmount checks that an amount is a canonical base-unit decimal
// integer string. Amounts are never parsed into floats; all comparisons are
// byte-for-byte, so the canonical form matters.
func ValidateAmount(amount string) error {
	if amount == "" {
		return apperrors.New(apperrors.CodeInvalidAmount, "amount is required")
	}
	if len(amount) > 1 && amount[0] == '0' {
		return apperrors.New(apperrors.CodeInvalidAmount, "amount has leading zeros")
	}
	for _, r := range amount {
		if r < '0' || r > '9' {
			return apperrors.New(apperrors.CodeInvalidAmount, "amount must be a decimal integer string")
		}
	}
	return nil
}

// EqualAddress compares two addresses case-insensitively.
func EqualAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ZeroAmount reports whether the amount prices access at zero.
func ZeroAmount(amount string) bool {
	return amount == "" || amount == "0"
}
