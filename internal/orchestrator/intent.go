package orchestrator

import (
	"regexp"
	"strings"
)

// IntentClassifier decides whether a message asks how to upload a file.
type IntentClassifier interface {
	DetectsUploadIntent(text string) bool
}

// RegexIntent matches upload phrasing such as "upload this file" or a bare
// "please share files".
type RegexIntent struct {
	patterns []*regexp.Regexp
}

// NewRegexIntent returns the default classifier.
func NewRegexIntent() *RegexIntent {
	return &RegexIntent{patterns: []*regexp.Regexp{
		regexp.MustCompile(`\b(upload|attach|send|share)\s+(?:this|these|the|a|my|some)?\s*file`),
		regexp.MustCompile(`^\s*(please\s+)?(upload|attach|send|share)(\s+this|\s+that|\s+these|\s+the|\s+a|\s+my|\s+some)?\s+file(s)?\s*\.?\s*$`),
	}}
}

// DetectsUploadIntent matches case-insensitively.
func (r *RegexIntent) DetectsUploadIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range r.patterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}
