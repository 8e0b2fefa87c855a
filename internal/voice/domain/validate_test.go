package domain

import (
	"testing"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
)

func TestNormalizeWallet(t *testing.T) {
	t.Parallel()

	got, err := NormalizeWallet("0xABCDEF0123456789abcdef0123456789ABCDEF01")
	if err != nil {
		t.Fatalf("normalize wallet: %v", err)
	}
	want := "0xabcdef0123456789abcdef0123456789abcdef01"
	if got != want {
		t.Fatalf("wallet = %q, want %q", got, want)
	}
}

func TestNormalizeWalletRejectsBadInput(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "0x123", "abcdef0123456789abcdef0123456789abcdef0101", "0xzzcdef0123456789abcdef0123456789abcdef01"} {
		if _, err := NormalizeWallet(input); !apperrors.IsCode(err, apperrors.CodeInvalidWallet) {
			t.Fatalf("NormalizeWallet(%q) error = %v, want invalid_wallet", input, err)
		}
	}
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	for _, amount := range []string{"0", "1", "100000", "123456789012345678901234567890"} {
		if err := ValidateAmount(amount); err != nil {
			t.Fatalf("ValidateAmount(%q) = %v", amount, err)
		}
	}
	for _, amount := range []string{"", "01", "-1", "1.5", "1e6", " 100"} {
		if err := ValidateAmount(amount); !apperrors.IsCode(err, apperrors.CodeInvalidAmount) {
			t.Fatalf("ValidateAmount(%q) = %v, want invalid_amount", amount, err)
		}
	}
}

func TestEqualAddress(t *testing.T) {
	t.Parallel()

	if !EqualAddress("0xAbC", "0xaBc") {
		t.Fatal("expected case-insensitive address match")
	}
	if EqualAddress("0xabc", "0xabd") {
		t.Fatal("expected mismatch for different addresses")
	}
}
