// Package money converts decimal amount strings into integer minor units.
package money

import (
	"errors"
	"regexp"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmountFormat means the input is not a plain decimal with at most
// two fractional digits.
var ErrInvalidAmountFormat = errors.New("amount must be a positive decimal with up to 2 decimals")

// ErrNonPositiveAmount means the input parsed to zero cents.
var ErrNonPositiveAmount = errors.New("amount must be > 0")

var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// ParseAmount converts a decimal string into cents. The fractional part is
// right-padded to two digits, so "12.3" is 1230 cents.
func ParseAmount(value string) (int64, error) {
	if !amountPattern.MatchString(value) {
		return 0, ErrInvalidAmountFormat
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, ErrInvalidAmountFormat
	}
	cents := d.Shift(2).IntPart()
	if cents <= 0 {
		return 0, ErrNonPositiveAmount
	}
	return cents, nil
}
