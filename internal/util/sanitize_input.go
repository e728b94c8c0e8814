package util

import (
	"html"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// SanitizeInput trims s and escapes HTML/script-like characters.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// NormalizeEmail lower-cases and trims an email address. Every key and
// lookup derived from an email goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is a bare address (no display name).
func ValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(email, ".")
}

// ValidPhone accepts 10 to 15 digits with an optional leading '+'.
func ValidPhone(phone string) bool {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(phone)
	return phonePattern.MatchString(phone)
}

// ContainsSuspicious flags script-like fragments in free text.
func ContainsSuspicious(s string) bool {
	badChars := []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"}
	lower := strings.ToLower(s)
	for _, c := range badChars {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

// RuneLen is the length of s in characters.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
