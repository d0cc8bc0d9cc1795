package card

import (
	"testing"
	"time"
)

func TestLuhnCheck_KnownGoodNumbers(t *testing.T) {
	valid := []string{
		"4242424242424242",
		"5555555555554444",
		"4111111111111111",
		"378282246310005",   // amex, 15 digits
		"6011111111111117",  // discover
		"4242 4242 4242 4242",
		"4242-4242-4242-4242",
	}
	for _, number := range valid {
		if !LuhnCheck(number) {
			t.Errorf("LuhnCheck(%q) = false, want true", number)
		}
	}
}

func TestLuhnCheck_MutatedDigitFails(t *testing.T) {
	// Curated mutations of 4242424242424242 known to break the checksum.
	invalid := []string{
		"4242424242424241",
		"4242424242424243",
		"4242424242424240",
		"5555555555554443",
	}
	for _, number := range invalid {
		if LuhnCheck(number) {
			t.Errorf("LuhnCheck(%q) = true, want false", number)
		}
	}
}

func TestLuhnCheck_GarbageInput(t *testing.T) {
	for _, number := range []string{"", "abcd", "42x2424242424242"} {
		if LuhnCheck(number) {
			t.Errorf("LuhnCheck(%q) = true, want false", number)
		}
	}
}

func TestIsValidFormat(t *testing.T) {
	tests := []struct {
		number string
		want   bool
	}{
		{"4242424242424242", true},
		{"4242 4242 4242 4242", true},
		{"1234567890123", true},        // 13 digits, format only
		{"1234567890123456789", true},  // 19 digits
		{"123456789012", false},        // 12 digits
		{"12345678901234567890", false}, // 20 digits
		{"4242abcd42424242", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidFormat(tt.number); got != tt.want {
			t.Errorf("IsValidFormat(%q) = %v, want %v", tt.number, got, tt.want)
		}
	}
}

func TestCardBrand(t *testing.T) {
	tests := []struct {
		number string
		want   Brand
	}{
		{"4242424242424242", BrandVisa},
		{"5500000000000004", BrandMastercard},
		{"5100000000000000", BrandMastercard},
		{"5600000000000000", BrandUnknown}, // 56 is outside 51-55
		{"340000000000009", BrandAmex},
		{"370000000000002", BrandAmex},
		{"6011000000000004", BrandDiscover},
		{"6500000000000002", BrandDiscover},
		{"1234567890123", BrandUnknown},
		{"", BrandUnknown},
	}
	for _, tt := range tests {
		if got := CardBrand(tt.number); got != tt.want {
			t.Errorf("CardBrand(%q) = %q, want %q", tt.number, got, tt.want)
		}
	}
}

func TestIsValidExpiry(t *testing.T) {
	ref := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		month, year string
		want        bool
	}{
		{"6", "2026", true},   // current month is still valid
		{"12", "2026", true},
		{"1", "2027", true},
		{"5", "2026", false}, // one month in the past
		{"12", "2025", false},
		{"0", "2030", false},
		{"13", "2030", false},
		{"june", "2026", false},
		{"6", "", false},
	}
	for _, tt := range tests {
		if got := IsValidExpiry(tt.month, tt.year, ref); got != tt.want {
			t.Errorf("IsValidExpiry(%q, %q) = %v, want %v", tt.month, tt.year, got, tt.want)
		}
	}
}

func TestIsValidCVV(t *testing.T) {
	tests := []struct {
		cvv   string
		brand Brand
		want  bool
	}{
		{"123", BrandVisa, true},
		{"1234", BrandVisa, false},
		{"1234", BrandAmex, true},
		{"123", BrandAmex, false},
		{"123", BrandUnknown, true},
		{"12", BrandVisa, false},
		{"12a", BrandVisa, false},
		{"", BrandVisa, false},
	}
	for _, tt := range tests {
		if got := IsValidCVV(tt.cvv, tt.brand); got != tt.want {
			t.Errorf("IsValidCVV(%q, %q) = %v, want %v", tt.cvv, tt.brand, got, tt.want)
		}
	}
}

func TestValidate_Pipeline(t *testing.T) {
	ref := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      Input
		brand   Brand
		wantErr error
	}{
		{
			name:  "valid visa",
			in:    Input{CardNumber: "4242424242424242", ExpiryMonth: "12", ExpiryYear: "2030", CVV: "123"},
			brand: BrandVisa,
		},
		{
			name:  "valid amex with 4 digit cvv",
			in:    Input{CardNumber: "378282246310005", ExpiryMonth: "12", ExpiryYear: "2030", CVV: "1234"},
			brand: BrandAmex,
		},
		{
			name:    "bad format short-circuits before luhn",
			in:      Input{CardNumber: "1234", ExpiryMonth: "12", ExpiryYear: "2030", CVV: "123"},
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "luhn failure",
			in:      Input{CardNumber: "4242424242424241", ExpiryMonth: "12", ExpiryYear: "2030", CVV: "123"},
			wantErr: ErrLuhnCheckFailed,
		},
		{
			name:    "unknown brand rejected",
			in:      Input{CardNumber: "1234567890123452", ExpiryMonth: "12", ExpiryYear: "2030", CVV: "123"},
			wantErr: ErrUnsupportedBrand,
		},
		{
			name:    "expired card",
			in:      Input{CardNumber: "4242424242424242", ExpiryMonth: "5", ExpiryYear: "2026", CVV: "123"},
			wantErr: ErrExpired,
		},
		{
			name:    "wrong cvv length for visa",
			in:      Input{CardNumber: "4242424242424242", ExpiryMonth: "12", ExpiryYear: "2030", CVV: "1234"},
			wantErr: ErrInvalidCVV,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brand, err := Validate(tt.in, ref)
			if err != tt.wantErr {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && brand != tt.brand {
				t.Errorf("Validate() brand = %q, want %q", brand, tt.brand)
			}
		})
	}
}

func TestInputLast4(t *testing.T) {
	in := Input{CardNumber: "4242 4242 4242 4242"}
	if got := in.Last4(); got != "4242" {
		t.Errorf("Last4() = %q, want %q", got, "4242")
	}
}
