package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// PasswordPolicy toggles each password rule independently.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// DefaultPasswordPolicy is used when no configuration overrides it.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   false,
	}
}

// ValidatePassword returns one message per violated rule, in rule order.
// An empty result means the password is acceptable.
func ValidatePassword(pw string, p PasswordPolicy) []string {
	var upper, lower, number, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			number = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	var violations []string
	if p.MinLength > 0 && utf8.RuneCountInString(pw) < p.MinLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters long", p.MinLength))
	}
	if p.RequireUppercase && !upper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if p.RequireLowercase && !lower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if p.RequireNumber && !number {
		violations = append(violations, "must contain a number")
	}
	if p.RequireSpecial && !special {
		violations = append(violations, "must contain a special character")
	}
	return violations
}

// PasswordError joins violations into a single user-facing sentence.
func PasswordError(violations []string) string {
	if len(violations) == 0 {
		return ""
	}
	return "password " + strings.Join(violations, "; ")
}
