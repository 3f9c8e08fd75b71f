// Package sanitize makes untrusted log text safe to draw in a terminal.
//
// Log lines come from sshd and fail2ban and may carry attacker-controlled
// bytes (user names, client banners). Anything that could move the cursor,
// change colors or set the window title is replaced by a visible marker.
package sanitize

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxDisplayLength bounds a rendered line when no width is known.
	DefaultMaxDisplayLength = 256

	ellipsis = "..."
)

// Line sanitizes s and truncates it to maxLen runes. A maxLen <= 0 means no
// limit.
func Line(s string, maxLen int) string {
	return Truncate(ForTerminal(s), maxLen)
}

// Truncate shortens s to at most maxLen runes, marking the cut with an
// ellipsis. It never splits a multi-byte rune.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= len(ellipsis) {
		return string([]rune(s)[:maxLen])
	}
	return string([]rune(s)[:maxLen-len(ellipsis)]) + ellipsis
}

// ForTerminal replaces control characters and escape sequences with
// printable markers. Clean input is returned unchanged without allocating.
func ForTerminal(s string) string {
	if clean(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]

		if c == 0x1B {
			i = skipEscape(s, i+1)
			b.WriteString("[ESC]")
			continue
		}

		if c < utf8.RuneSelf {
			switch {
			case c == '\t', c == '\n':
				b.WriteByte(' ')
			case c == '\r':
				b.WriteString("[CR]")
			case c < 0x20:
				b.WriteString("[CTRL]")
			case c == 0x7F:
				b.WriteString("[DEL]")
			default:
				b.WriteByte(c)
			}
			i++
			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			b.WriteRune(utf8.RuneError)
		case r >= 0x80 && r <= 0x9F:
			b.WriteString("[CTRL]")
		default:
			b.WriteString(s[i : i+size])
		}
		i += size
	}

	return b.String()
}

func clean(s string) bool {
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c < 0x20 || c == 0x7F {
				return false
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if (r == utf8.RuneError && size == 1) || (r >= 0x80 && r <= 0x9F) {
			return false
		}
		i += size
	}
	return true
}

// skipEscape returns the index just past the escape sequence whose
// introducer follows ESC at i. CSI sequences end at a final byte, OSC
// sequences at BEL or ST.
func skipEscape(s string, i int) int {
	if i >= len(s) {
		return i
	}
	switch s[i] {
	case '[':
		i++
		for i < len(s) && !isCSIFinal(s[i]) {
			i++
		}
		if i < len(s) {
			i++
		}
	case ']':
		i++
		for i < len(s) {
			if s[i] == 0x07 {
				return i + 1
			}
			if s[i] == 0x1B && i+1 < len(s) && s[i+1] == '\\' {
				return i + 2
			}
			i++
		}
	default:
		i++
	}
	return i
}

func isCSIFinal(c byte) bool {
	return c >= 0x40 && c <= 0x7E
}

// Address keeps only the characters of a dotted IPv4 address.
func Address(ip string) string {
	var b strings.Builder
	b.Grow(len(ip))

	for i := 0; i < len(ip); i++ {
		if c := ip[i]; (c >= '0' && c <= '9') || c == '.' {
			b.WriteByte(c)
		}
	}

	if b.Len() == 0 {
		return "[INVALID]"
	}
	return b.String()
}
