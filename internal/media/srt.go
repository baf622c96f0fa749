package media

import (
	"fmt"
	"strings"
)

// Cue is one timed subtitle entry.
type Cue struct {
	Start float64 // seconds
	End   float64 // seconds
	Text  string
}

// FormatSRT renders cues as an SRT document: sequence number, time range
// in HH:MM:SS,mmm form, text, blank line.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(c.Start), srtTimestamp(c.End), c.Text)
	}
	return b.String()
}

// srtTimestamp formats seconds as HH:MM:SS,mmm.
func srtTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int(sec*1000 + 0.5)
	h := ms / 3600000
	ms %= 3600000
	m := ms / 60000
	ms %= 60000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// StripSubtitle reduces an SRT document to its dialogue lines, dropping
// sequence numbers and time ranges. Used to build LLM context from a
// subtitle-format transcript.
func StripSubtitle(srt string) string {
	var kept []string
	for _, line := range strings.Split(srt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "-->") || isDigits(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// isDigits reports whether s is a non-empty run of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
