package util

import (
	"regexp"
	"strings"
	"unicode"
)

// JIDSuffix is the WhatsApp user address suffix used as the canonical form.
const JIDSuffix = "@s.whatsapp.net"

// PhoneDigits keeps only the digits of the user part of an address,
// dropping any @domain suffix.
func PhoneDigits(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "whatsapp:")
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeJID converts any sender or phone representation ("+971 50...",
// "97150...@c.us", "whatsapp:+97150...") to digits plus JIDSuffix.
// It returns "" when the input carries no digits.
func NormalizeJID(s string) string {
	d := PhoneDigits(s)
	if d == "" {
		return ""
	}
	return d + JIDSuffix
}

// SanitizeUserID derives the conversation store key: alphanumerics only.
func SanitizeUserID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	sheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)
	sheetIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]{30,}$`)
)

// ExtractSheetID returns the spreadsheet ID from a Google Sheets URL or a raw
// ID. Anything else is returned trimmed and unchanged so the caller can
// report it.
func ExtractSheetID(spec string) string {
	spec = strings.TrimSpace(spec)
	if m := sheetURLPattern.FindStringSubmatch(spec); m != nil {
		return m[1]
	}
	return spec
}

// LooksLikeSheetID reports whether s has the shape of a spreadsheet ID.
func LooksLikeSheetID(s string) bool {
	return sheetIDPattern.MatchString(s)
}
