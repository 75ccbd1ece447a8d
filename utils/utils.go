package utils

import (
	"strings"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// EqualFoldASCII reports whether a and b are equal under ASCII case folding.
// Header field names are ASCII per RFC 5322, so the Unicode tables used by
// strings.EqualFold are not needed.
func EqualFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca == cb {
			continue
		}
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// ContainsNonASCII checks if a string contains any non-ASCII characters (bytes > 127).
func ContainsNonASCII(s string) bool {
	for _, v := range s {
		if v >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// GenerateID returns a new lexically sortable unique identifier (ULID).
func GenerateID() string {
	return ulid.Make().String()
}

// LowerASCII lower-cases the ASCII letters of s and leaves everything else alone.
func LowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if 'A' <= s[i] && s[i] <= 'Z' {
			return strings.ToLower(s)
		}
	}
	return s
}
