package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxLineLength = 8192

	// Fail2banMarker tags lines relayed from the fail2ban log.
	Fail2banMarker = "++++"
	// BanMarker appears in fail2ban lines that announce a ban.
	BanMarker = "Ban "
)

// Origin names the log source a line was read from.
type Origin string

const (
	OriginJournal  Origin = "journal"
	OriginFail2ban Origin = "fail2ban"
)

func (o Origin) String() string { return string(o) }

var ipv4Pattern = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// ExtractIPv4 returns the first IPv4-shaped substring of line.
// The match is purely lexical; octets are not range checked.
func ExtractIPv4(line string) (string, bool) {
	m := ipv4Pattern.FindString(line)
	return m, m != ""
}

// LineFlags are the message flags derived from a raw line and its origin.
type LineFlags struct {
	IsJournal bool
	IsBan     bool
}

// Classify derives the message flags for a line. A line is a fail2ban line
// when it came from the fail2ban watcher or carries the fail2ban marker;
// everything else is journal. Only fail2ban lines can be ban events.
func Classify(line string, origin Origin) LineFlags {
	fail2ban := origin == OriginFail2ban || strings.Contains(line, Fail2banMarker)
	if !fail2ban {
		return LineFlags{IsJournal: true}
	}
	return LineFlags{IsBan: strings.Contains(line, BanMarker)}
}

// TruncateLine caps a line at MaxLineLength bytes without splitting a rune.
func TruncateLine(line string) (string, bool) {
	if len(line) <= MaxLineLength {
		return line, false
	}
	cut := MaxLineLength
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut], true
}
