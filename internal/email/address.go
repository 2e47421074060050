// Package email validates addresses and delivers drafted emails over SMTP.
package email

import (
	"regexp"
	"strings"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	addressRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// ValidateEmail returns true if s looks like a valid email address.
func ValidateEmail(s string) bool {
	return emailRegex.MatchString(s)
}

// FindAddress returns the first email address appearing in text, or "".
func FindAddress(text string) string {
	return strings.TrimRight(addressRegex.FindString(text), ".")
}

// StripAddresses removes every email address from text.
func StripAddresses(text string) string {
	return addressRegex.ReplaceAllString(text, " ")
}
