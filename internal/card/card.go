// Package card validates payment card details. Everything here is pure and
// side-effect free; malformed input is reported as invalid, never as a panic
// or an error the caller has to recover from.
package card

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Brand string

const (
	BrandVisa       Brand = "visa"
	BrandMastercard Brand = "mastercard"
	BrandAmex       Brand = "amex"
	BrandDiscover   Brand = "discover"
	BrandUnknown    Brand = "unknown"
)

var formatRe = regexp.MustCompile(`^\d{13,19}$`)

// Validation failure reasons, worded exactly as the API reports them.
var (
	ErrInvalidFormat    = errors.New("Invalid card number format")
	ErrLuhnCheckFailed  = errors.New("Invalid card number")
	ErrUnsupportedBrand = errors.New("Unsupported card type")
	ErrExpired          = errors.New("Card has expired or invalid expiry date")
	ErrInvalidCVV       = errors.New("Invalid CVV")
)

// Normalize strips whitespace and dashes from a card number.
func Normalize(cardNumber string) string {
	cardNumber = strings.ReplaceAll(cardNumber, "-", "")
	return strings.Join(strings.Fields(cardNumber), "")
}

// IsValidFormat reports whether the normalized number is 13-19 digits.
func IsValidFormat(cardNumber string) bool {
	return formatRe.MatchString(Normalize(cardNumber))
}

// LuhnCheck runs the mod-10 checksum: walking from the rightmost digit,
// every second digit is doubled (minus 9 when the double exceeds 9) and the
// total must be divisible by 10.
func LuhnCheck(cardNumber string) bool {
	cardNumber = Normalize(cardNumber)
	if cardNumber == "" {
		return false
	}

	sum := 0
	double := false
	for i := len(cardNumber) - 1; i >= 0; i-- {
		c := cardNumber[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}

// CardBrand classifies a number by its issuer prefix.
func CardBrand(cardNumber string) Brand {
	cardNumber = Normalize(cardNumber)

	switch {
	case strings.HasPrefix(cardNumber, "4"):
		return BrandVisa
	case len(cardNumber) >= 2 && cardNumber[0] == '5' && cardNumber[1] >= '1' && cardNumber[1] <= '5':
		return BrandMastercard
	case strings.HasPrefix(cardNumber, "34") || strings.HasPrefix(cardNumber, "37"):
		return BrandAmex
	case strings.HasPrefix(cardNumber, "6011") || strings.HasPrefix(cardNumber, "65"):
		return BrandDiscover
	}
	return BrandUnknown
}

// IsValidExpiry checks month/year against ref at calendar-month granularity.
// A card expiring in ref's own month is still valid.
func IsValidExpiry(month, year string, ref time.Time) bool {
	expMonth, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil {
		return false
	}
	expYear, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return false
	}

	if expMonth < 1 || expMonth > 12 {
		return false
	}
	if expYear < ref.Year() {
		return false
	}
	if expYear == ref.Year() && expMonth < int(ref.Month()) {
		return false
	}
	return true
}

// IsValidCVV checks the security code length: 4 digits for amex, 3 for
// every other brand, unknown included.
func IsValidCVV(cvv string, brand Brand) bool {
	for i := 0; i < len(cvv); i++ {
		if cvv[i] < '0' || cvv[i] > '9' {
			return false
		}
	}
	if brand == BrandAmex {
		return len(cvv) == 4
	}
	return len(cvv) == 3
}

// Input is the transient card detail set. It is never persisted; only the
// brand and last four digits survive into a payment record.
type Input struct {
	CardNumber     string
	CardholderName string
	ExpiryMonth    string
	ExpiryYear     string
	CVV            string
}

// Last4 returns the final four digits of the normalized number.
func (in Input) Last4() string {
	n := Normalize(in.CardNumber)
	if len(n) < 4 {
		return n
	}
	return n[len(n)-4:]
}

// Validate runs the full pipeline in order: format, Luhn, brand, expiry, CVV.
// The first failing check wins. A nil error means the card is chargeable and
// the returned brand is never BrandUnknown.
func Validate(in Input, ref time.Time) (Brand, error) {
	if !IsValidFormat(in.CardNumber) {
		return BrandUnknown, ErrInvalidFormat
	}
	if !LuhnCheck(in.CardNumber) {
		return BrandUnknown, ErrLuhnCheckFailed
	}
	brand := CardBrand(in.CardNumber)
	if brand == BrandUnknown {
		return BrandUnknown, ErrUnsupportedBrand
	}
	if !IsValidExpiry(in.ExpiryMonth, in.ExpiryYear, ref) {
		return brand, ErrExpired
	}
	if !IsValidCVV(in.CVV, brand) {
		return brand, ErrInvalidCVV
	}
	return brand, nil
}
