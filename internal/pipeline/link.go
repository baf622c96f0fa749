package pipeline

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidLink is returned when a submitted URL matches no recognized
// video link shape. User-correctable: the router replies with guidance.
var ErrInvalidLink = errors.New("pipeline: unrecognized video link")

// linkPatterns are the recognized Bilibili link shapes: the canonical
// /video/ URL and the b23.tv short link.
var linkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`bilibili\.com/video/([^/?#\s]+)`),
	regexp.MustCompile(`b23\.tv/([^/?#\s]+)`),
}

// ExtractVideoID pulls the canonical video identifier out of a Bilibili
// link, failing with ErrInvalidLink if no pattern matches.
func ExtractVideoID(url string) (string, error) {
	for _, p := range linkPatterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLink, url)
}

// IsVideoLink reports whether text contains a recognized video link.
// The router uses this for classification before anything else; link
// text must never be mis-routed as a question.
func IsVideoLink(text string) bool {
	for _, p := range linkPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
