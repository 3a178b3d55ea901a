// Package phone normalizes user-supplied Philippine mobile numbers to the
// canonical 12-digit form 639XXXXXXXXX.
package phone

import (
	"errors"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidFormat is returned when a number cannot be reduced to the
// canonical form.
var ErrInvalidFormat = errors.New("invalid Philippine mobile number")

var canonicalRe = regexp.MustCompile(`^639\d{9}$`)

// Normalize maps raw input to 639XXXXXXXXX. On failure the cleaned digits are
// returned alongside ErrInvalidFormat for diagnostics only; callers must not
// use them as a phone number.
func Normalize(raw string) (string, error) {
	s := digitsOnly(raw)

	// 63 + 0 + subscriber number
	if strings.HasPrefix(s, "630") && len(s) >= 12 {
		s = "63" + s[3:]
	}
	if strings.HasPrefix(s, "63") && len(s) > 12 {
		s = s[:12]
	}
	if strings.HasPrefix(s, "09") && len(s) == 11 {
		s = "63" + s[1:]
	}
	if strings.HasPrefix(s, "9") && len(s) == 10 {
		s = "63" + s
	}

	if !canonicalRe.MatchString(s) {
		return s, ErrInvalidFormat
	}
	return s, nil
}

// IsCanonical reports whether s is already in canonical form.
func IsCanonical(s string) bool {
	return canonicalRe.MatchString(s)
}

// Display renders a canonical number in international format for responses.
func Display(canonical string) string {
	num, err := phonenumbers.Parse("+"+canonical, "PH")
	if err != nil {
		return "+" + canonical
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
}

func digitsOnly(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
