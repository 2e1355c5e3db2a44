package util

import (
	"net/mail"
	"regexp"
	"strings"
)

var nonDial = regexp.MustCompile(`[^\d\+]+`)

// NormalizePhone normalizes user input into E.164 form, prefixing countryCode (e.g. "+98")
// for numbers written in national format with a leading 0.
func NormalizePhone(raw, countryCode string) string {
	s := nonDial.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" {
		return ""
	}
	cc := strings.TrimPrefix(countryCode, "+")

	switch {
	case strings.HasPrefix(s, "+"):
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case strings.HasPrefix(s, "0") && cc != "":
		s = "+" + cc + s[1:]
	case cc != "" && strings.HasPrefix(s, cc) && len(s) > len(cc)+8:
		s = "+" + s
	case cc != "":
		s = "+" + cc + s
	}

	return s
}

// NormalizeEmail lowercases and validates an address. It returns "" for invalid input.
func NormalizeEmail(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return ""
	}
	return s
}
