// Package cnpj validates and formats Brazilian company registration
// numbers (CNPJ). The check-digit algorithm is the standard mod-11 over
// the first twelve digits, then over thirteen.
package cnpj

import "strings"

// Validator implements the regulatory-identifier capability.
type Validator struct{}

// New returns a CNPJ validator.
func New() Validator { return Validator{} }

// ExtractDigits strips everything but decimal digits.
func (Validator) ExtractDigits(id string) string {
	var b strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate reports whether id is a well-formed CNPJ. Punctuation is
// ignored; all-same-digit numbers are rejected even though their check
// digits compute.
func (v Validator) Validate(id string) bool {
	digits := v.ExtractDigits(id)
	if len(digits) != 14 {
		return false
	}
	same := true
	for i := 1; i < 14; i++ {
		if digits[i] != digits[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}
	return checkDigit(digits, 12) == int(digits[12]-'0') &&
		checkDigit(digits, 13) == int(digits[13]-'0')
}

// Format renders a valid 14-digit CNPJ as XX.XXX.XXX/XXXX-XX. Input
// that is not 14 digits comes back unchanged.
func (v Validator) Format(id string) string {
	d := v.ExtractDigits(id)
	if len(d) != 14 {
		return id
	}
	return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14]
}

// checkDigit computes the verification digit over the first n digits.
// Weights cycle 2..9 from the rightmost position leftward.
func checkDigit(digits string, n int) int {
	weight := 2
	sum := 0
	for i := n - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}
