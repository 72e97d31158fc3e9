package internal

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf16"
)

const (
	maxDomainLength = 253

	// InvalidLookupMessage is surfaced for rejected lookup targets
	InvalidLookupMessage = "Invalid IP or domain"
)

var (
	octet       = `(25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])`
	ipv4Pattern = regexp.MustCompile(`^` + octet + `(\.` + octet + `){3}$`)

	// labels of 1-63 alphanumerics/hyphens, no edge hyphens, alphabetic final label
	domainPattern = regexp.MustCompile(`^([A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z]{1,63}$`)

	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// IsIPv4 reports whether s is a strict dotted-quad address
func IsIPv4(s string) bool {
	return ipv4Pattern.MatchString(s)
}

// IsDomain reports whether s is a plain domain name
func IsDomain(s string) bool {
	return len(s) <= maxDomainLength && domainPattern.MatchString(s)
}

// IsAcceptable reports whether input is a valid lookup target: an IPv4
// address or a domain name. IPv6, URLs and ports are rejected.
func IsAcceptable(input string) bool {
	return IsIPv4(input) || IsDomain(input)
}

// ValidateLookup trims input and returns it, or a ValidationError
func ValidateLookup(input string) (string, error) {
	q := strings.TrimSpace(input)
	if !IsAcceptable(q) {
		return "", &ValidationError{Field: "ip", Message: InvalidLookupMessage}
	}
	return q, nil
}

// IsValidEmail checks the local@domain.tld shape
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsStrongPassword requires 8+ characters with an ASCII lowercase letter, an
// ASCII uppercase letter, an ASCII digit and a symbol. A symbol is anything
// other than an ASCII word character or whitespace, so non-ASCII letters
// count as symbols. Line breaks are not allowed.
func IsStrongPassword(pw string) bool {
	if strings.ContainsAny(pw, "\r\n\u2028\u2029") {
		return false
	}
	// length counts UTF-16 units, matching the sign-up form
	if len(utf16.Encode([]rune(pw))) < 8 {
		return false
	}
	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case r != '_' && !unicode.IsSpace(r):
			symbol = true
		}
	}
	return lower && upper && digit && symbol
}

// ValidateSignIn checks credentials before any network call
func ValidateSignIn(email, password string) error {
	if !IsValidEmail(email) {
		return &ValidationError{Field: "email", Message: "Please enter a valid email"}
	}
	if !IsStrongPassword(password) {
		return &ValidationError{Field: "password", Message: "Password must be 8+ chars with uppercase, lowercase, number & symbol"}
	}
	return nil
}

// ValidateSignUp checks the sign-up form before any network call
func ValidateSignUp(email, password, displayName string) error {
	if strings.TrimSpace(displayName) == "" {
		return &ValidationError{Field: "displayName", Message: "Display name is required"}
	}
	return ValidateSignIn(email, password)
}
