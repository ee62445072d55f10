// Package phone normalizes Senegalese phone numbers to the international form used by messaging links.
package phone

import (
	"strings"
)

const (
	CountryCode     = "221"
	nationalNumLen  = 9
	intlNumLen      = len(CountryCode) + nationalNumLen
	formatErrorText = "numéro invalide : utilisez un numéro sénégalais à 9 chiffres (ex. 77 123 45 67)"
)

// Error is returned for numbers that cannot be normalized.
// Its message is meant to be shown to the user as a correction prompt.
type Error struct {
	Input string
}

func (e Error) Error() string {
	return formatErrorText
}

var separators = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "", "/", "")

// Normalize returns the canonical `221XXXXXXXXX` form of a Senegalese number.
// Accepted inputs: `+221 77 123 45 67`, `00221771234567`, `221771234567`, `771234567`.
// National numbers are 9 digits starting with 7 (mobile) or 3 (fixed line).
func Normalize(raw string) (string, error) {
	s := separators.Replace(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "00"):
		s = s[2:]
	}

	var national string
	switch len(s) {
	case intlNumLen:
		if !strings.HasPrefix(s, CountryCode) {
			return "", &Error{Input: raw}
		}
		national = s[len(CountryCode):]
	case nationalNumLen:
		national = s
	default:
		return "", &Error{Input: raw}
	}

	if !allDigits(national) || !(national[0] == '7' || national[0] == '3') {
		return "", &Error{Input: raw}
	}
	return CountryCode + national, nil
}

// IsValid reports whether raw can be normalized.
func IsValid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
