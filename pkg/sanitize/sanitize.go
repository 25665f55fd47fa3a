// Package sanitize cleans free text scraped from upstream before it is
// persisted or serialized. Every transform here is idempotent.
package sanitize

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

var emptyList = []byte("[]")

// String strips control characters (except tab, newline and carriage return),
// invalid UTF-8 including encoded surrogate halves, incomplete \u and \x
// escapes, escaped unpaired surrogates and a dangling trailing backslash.
func String(s string) string {
	if s == "" {
		return s
	}
	return stripEscapes(stripInvalid(s))
}

// Strings sanitizes every element and drops the ones that end up empty.
func Strings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if clean := strings.TrimSpace(String(s)); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

// JSON serializes v, falling back to an empty JSON array when serialization
// fails so a single bad sequence never aborts the write it belongs to.
func JSON(v interface{}) []byte {
	if v == nil {
		return emptyList
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return emptyList
	}
	return b
}

func stripInvalid(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func stripEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			i++
			continue
		}
		if i+1 >= len(s) {
			break
		}

		switch s[i+1] {
		case 'u':
			cp, ok := hexAt(s, i+2, 4)
			if !ok {
				i += 2
				continue
			}
			switch {
			case cp >= 0xD800 && cp <= 0xDBFF:
				if low, ok := escapedLowSurrogate(s, i+6); ok && low {
					b.WriteString(s[i : i+12])
					i += 12
					continue
				}
				i += 6
			case cp >= 0xDC00 && cp <= 0xDFFF:
				i += 6
			default:
				b.WriteString(s[i : i+6])
				i += 6
			}
		case 'x':
			if _, ok := hexAt(s, i+2, 2); !ok {
				i += 2
				continue
			}
			b.WriteString(s[i : i+4])
			i += 4
		default:
			// Copy the pair so an escaped backslash is never re-read as a prefix.
			b.WriteString(s[i : i+2])
			i += 2
		}
	}
	return b.String()
}

func escapedLowSurrogate(s string, at int) (bool, bool) {
	if at+1 >= len(s) || s[at] != '\\' || s[at+1] != 'u' {
		return false, false
	}
	cp, ok := hexAt(s, at+2, 4)
	if !ok {
		return false, false
	}
	return cp >= 0xDC00 && cp <= 0xDFFF, true
}

func hexAt(s string, at, n int) (rune, bool) {
	if at+n > len(s) {
		return 0, false
	}
	var v rune
	for _, c := range []byte(s[at : at+n]) {
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		default:
			return 0, false
		}
		v = v<<4 | rune(d)
	}
	return v, true
}
