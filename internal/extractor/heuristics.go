package extractor

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/paper-annotator/internal/paper"
)

var (
	// abstractHeading matches "Abstract", "ABSTRACT.", "Abstract: text..." but not "Abstraction".
	abstractHeading = regexp.MustCompile(`(?i)^\s*abstract\b[\s.:\x{2014}\x{2013}-]*(.*)$`)
	// numberedHeading matches "1. Introduction" and "2.Related Work".
	numberedHeading = regexp.MustCompile(`^\s*[0-9]+\.\s*[A-Za-z]`)
	// introHeading matches the undotted "1 Introduction" used by the NeurIPS template.
	introHeading = regexp.MustCompile(`(?i)^\s*[0-9]+\s+introduction\b`)
)

// ExtractTitle returns the first of the leading scanLines non-empty lines that is
// longer than minLen runes and contains no digit.
func ExtractTitle(lines []string, scanLines, minLen int) string {
	seen := 0
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if seen == scanLines {
			break
		}
		seen++
		if utf8.RuneCountInString(line) > minLen && !strings.ContainsFunc(line, unicode.IsDigit) {
			return line
		}
	}
	return paper.UnknownTitle
}

type abstractState int

const (
	seeking abstractState = iota
	capturing
)

// ExtractAbstract captures the text between an "Abstract" heading and the next
// numbered section heading, joined with single spaces and cut to maxChars runes.
func ExtractAbstract(lines []string, maxChars int) string {
	state := seeking
	var parts []string

scan:
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		switch state {
		case seeking:
			if m := abstractHeading.FindStringSubmatch(line); m != nil {
				state = capturing
				if inline := strings.TrimSpace(m[1]); inline != "" {
					parts = append(parts, inline)
				}
			}
		case capturing:
			if numberedHeading.MatchString(line) || introHeading.MatchString(line) {
				break scan
			}
			parts = append(parts, line)
		}
	}

	abstract := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	if abstract == "" {
		return paper.NoAbstract
	}
	return truncateRunes(abstract, maxChars)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
