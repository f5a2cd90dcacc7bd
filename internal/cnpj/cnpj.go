// Package cnpj sanitizes, validates and formats Brazilian company registry
// numbers (CNPJ).
package cnpj

import (
	"fmt"
	"strings"
)

// Length is the number of digits of a CNPJ.
const Length = 14

// Sanitize strips every non-digit character.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// Valid reports whether s holds a CNPJ with correct check digits.
// Formatting characters are ignored.
func Valid(s string) bool {
	d := Sanitize(s)
	if len(d) != Length {
		return false
	}
	if strings.Count(d, d[:1]) == Length {
		return false
	}
	return checkDigit(d[:12]) == d[12] && checkDigit(d[:13]) == d[13]
}

// checkDigit computes the next check digit with weights cycling 2..9 from
// the rightmost digit.
func checkDigit(base string) byte {
	sum, weight := 0, 2
	for i := len(base) - 1; i >= 0; i-- {
		sum += int(base[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + 11 - r)
}

// Format renders a CNPJ as 00.000.000/0000-00. Inputs without 14 digits are
// returned unchanged.
func Format(s string) string {
	d := Sanitize(s)
	if len(d) != Length {
		return s
	}
	return fmt.Sprintf("%s.%s.%s/%s-%s", d[:2], d[2:5], d[5:8], d[8:12], d[12:14])
}
