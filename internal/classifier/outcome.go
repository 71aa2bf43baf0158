package classifier

import (
	"context"
	"fmt"
	"strings"
)

// OutcomeKind tags the result of one classification service call.
type OutcomeKind int

// Outcome kinds reported by a Service.
const (
	OutcomeOK OutcomeKind = iota
	OutcomeRateLimited
	OutcomeServiceFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeServiceFailed:
		return "service_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the tagged result of a service call. Text is the raw response for OutcomeOK.
type Outcome struct {
	Kind OutcomeKind
	Text string
	Err  error
}

// OK wraps a successful response.
func OK(text string) Outcome { return Outcome{Kind: OutcomeOK, Text: text} }

// RateLimited reports that the service asked the caller to back off.
func RateLimited(err error) Outcome { return Outcome{Kind: OutcomeRateLimited, Err: err} }

// Failed reports any other service error.
func Failed(err error) Outcome { return Outcome{Kind: OutcomeServiceFailed, Err: err} }

// Service sends one prompt to a text classification backend.
type Service interface {
	Classify(ctx context.Context, prompt string) Outcome
}

// BuildPrompt renders the fixed classification prompt.
func BuildPrompt(categories []string, title, abstract string) string {
	var b strings.Builder
	b.WriteString("Classify the following research paper into exactly one of these categories: ")
	b.WriteString(strings.Join(categories, ", "))
	b.WriteString(".\nRespond with only the category name.\n\n")
	b.WriteString("Title: ")
	b.WriteString(title)
	b.WriteString("\nAbstract: ")
	b.WriteString(abstract)
	b.WriteString("\n")
	return b.String()
}

// NormalizeLabel maps a raw response onto a configured category, ignoring case,
// surrounding quotes, markdown emphasis and trailing punctuation.
func NormalizeLabel(raw string, categories []string) (string, bool) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, " \t\"'`*_.:;")
	if rest, ok := cutPrefixFold(s, "category:"); ok {
		s = strings.Trim(rest, " \t\"'`*_.:;")
	}
	for _, c := range categories {
		if strings.EqualFold(s, c) {
			return c, true
		}
	}
	return "", false
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
