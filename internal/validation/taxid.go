// Package validation holds the Brazilian document checksums, the password
// policy and the shared go-playground validator.
package validation

import "crm-api/internal/format"

// ValidateCPF reports whether s holds a valid CPF. Punctuation is ignored.
func ValidateCPF(s string) bool {
	d := digitValues(format.Digits(s))
	if len(d) != 11 || allSame(d) {
		return false
	}
	return cpfCheckDigit(d[:9], 10) == d[9] && cpfCheckDigit(d[:10], 11) == d[10]
}

// cpfCheckDigit weighs digits from startWeight down to 2.
func cpfCheckDigit(digits []int, startWeight int) int {
	sum := 0
	for i, v := range digits {
		sum += v * (startWeight - i)
	}
	r := (sum * 10) % 11
	if r == 10 {
		return 0
	}
	return r
}

// ValidateCNPJ reports whether s holds a valid CNPJ. Punctuation is ignored.
func ValidateCNPJ(s string) bool {
	d := digitValues(format.Digits(s))
	if len(d) != 14 || allSame(d) {
		return false
	}
	return cnpjCheckDigit(d[:12]) == d[12] && cnpjCheckDigit(d[:13]) == d[13]
}

// cnpjCheckDigit weighs digits right to left with weights cycling 2..9.
func cnpjCheckDigit(digits []int) int {
	sum, weight := 0, 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += digits[i] * weight
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

func digitValues(s string) []int {
	out := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = int(s[i] - '0')
	}
	return out
}

func allSame(d []int) bool {
	for _, v := range d[1:] {
		if v != d[0] {
			return false
		}
	}
	return true
}
