package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var trivialPasswords = map[string]struct{}{
	"password":    {},
	"password123": {},
	"123456":      {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"11111111":    {},
	"letmein":     {},
}

// Validate checks plain against the length policy (in runes) and, when
// enabled, a small deny-list of trivially guessable passwords.
func (c Config) Validate(plain string) error {
	switch n := utf8.RuneCountInString(plain); {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	}
	if c.Policy.RejectVeryWeak && veryWeak(plain) {
		return ErrWeakPassword
	}
	return nil
}

func veryWeak(plain string) bool {
	s := strings.TrimSpace(plain)
	if s == "" {
		return true
	}
	if _, ok := trivialPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	repeated, digits := true, true
	for _, r := range s {
		if r != first {
			repeated = false
		}
		if !unicode.IsDigit(r) {
			digits = false
		}
	}
	// Short all-digit strings are PIN-like.
	return repeated || (digits && utf8.RuneCountInString(s) < 12)
}
