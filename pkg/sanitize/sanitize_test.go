package sanitize

import (
	"testing"
)

func TestForTerminal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "clean sshd line",
			input:    "sshd[311]: Failed password for root from 203.0.113.7 port 52110 ssh2",
			expected: "sshd[311]: Failed password for root from 203.0.113.7 port 52110 ssh2",
		},
		{
			name:     "ANSI color in user name",
			input:    "Invalid user \x1b[31madmin\x1b[0m from 203.0.113.7",
			expected: "Invalid user [ESC]admin[ESC] from 203.0.113.7",
		},
		{
			name:     "window title escape",
			input:    "user \x1b]0;pwned\x07 from 203.0.113.7",
			expected: "user [ESC] from 203.0.113.7",
		},
		{
			name:     "OSC terminated by ST",
			input:    "a\x1b]2;title\x1b\\b",
			expected: "a[ESC]b",
		},
		{
			name:     "screen clear",
			input:    "\x1b[2J\x1b[H\x1b[31mPWNED\x1b[0m",
			expected: "[ESC][ESC][ESC]PWNED[ESC]",
		},
		{
			name:     "trailing ESC",
			input:    "banner\x1b",
			expected: "banner[ESC]",
		},
		{
			name:     "tab and newline",
			input:    "Hello\tWorld\n",
			expected: "Hello World ",
		},
		{
			name:     "carriage return",
			input:    "Hello\rWorld",
			expected: "Hello[CR]World",
		},
		{
			name:     "control character",
			input:    "Hello\x01World",
			expected: "Hello[CTRL]World",
		},
		{
			name:     "delete character",
			input:    "Hello\x7FWorld",
			expected: "Hello[DEL]World",
		},
		{
			name:     "C1 control",
			input:    "Hello\u009bWorld",
			expected: "Hello[CTRL]World",
		},
		{
			name:     "invalid UTF-8",
			input:    "user \xff from",
			expected: "user � from",
		},
		{
			name:     "multi-byte text kept",
			input:    "Región Galicia",
			expected: "Región Galicia",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := ForTerminal(tc.input)
			if result != tc.expected {
				t.Errorf("ForTerminal(%q) = %q, want %q", tc.input, result, tc.expected)
			}
		})
	}
}

func TestLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{
			name:     "within limit",
			input:    "Hello World",
			maxLen:   20,
			expected: "Hello World",
		},
		{
			name:     "exceeds limit",
			input:    "This is a very long string that exceeds the limit",
			maxLen:   20,
			expected: "This is a very lo...",
		},
		{
			name:     "no limit",
			input:    "Hello World",
			maxLen:   0,
			expected: "Hello World",
		},
		{
			name:     "sanitize and truncate",
			input:    "\x1b[31mThis is malicious text\x1b[0m",
			maxLen:   20,
			expected: "[ESC]This is mali...",
		},
		{
			name:     "multi-byte runes are not split",
			input:    "Ourense, Galicia, España",
			maxLen:   23,
			expected: "Ourense, Galicia, Es...",
		},
		{
			name:     "tiny limit",
			input:    "ñandú",
			maxLen:   2,
			expected: "ña",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := Line(tc.input, tc.maxLen)
			if result != tc.expected {
				t.Errorf("Line(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "valid IPv4",
			input:    "203.0.113.7",
			expected: "203.0.113.7",
		},
		{
			name:     "trailing garbage",
			input:    "203.0.113.7<img>",
			expected: "203.0.113.7",
		},
		{
			name:     "escape around address",
			input:    "\x1b[31m203.0.113.7",
			expected: "31203.0.113.7",
		},
		{
			name:     "only invalid characters",
			input:    "<img>|!@#$%^&*()",
			expected: "[INVALID]",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := Address(tc.input)
			if result != tc.expected {
				t.Errorf("Address(%q) = %q, want %q", tc.input, result, tc.expected)
			}
		})
	}
}

func BenchmarkForTerminal(b *testing.B) {
	input := "Mar  1 00:00:01 host sshd[311]: Failed password for root from 203.0.113.7 port 52110 ssh2"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ForTerminal(input)
	}
}

func BenchmarkForTerminal_WithEscape(b *testing.B) {
	input := "Invalid user \x1b[31madmin\x1b[2J from 203.0.113.7\x1b]0;pwned\x07"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ForTerminal(input)
	}
}
