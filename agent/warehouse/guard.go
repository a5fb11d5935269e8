package warehouse

import (
	"fmt"
	"regexp"
	"strings"

	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
)

var (
	codeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	// Leftmost match wins, so a -- inside a literal stays part of the literal
	// and a quote inside a comment stays part of the comment.
	literalsAndComments = regexp.MustCompile(`(?s)'(?:[^']|'')*'|"(?:[^"]|"")*"|--[^\n]*|/\*.*?\*/`)
	writeStatement      = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|drop|alter|create|truncate|grant|revoke|copy|vacuum|call|do)\b`)
)

// CheckReadOnly normalizes a generated statement and rejects anything that is
// not a single SELECT or WITH query. The returned string is what should be
// sent to the database.
func CheckReadOnly(query string) (string, error) {
	stmt := strings.TrimSpace(query)
	if m := codeFence.FindStringSubmatch(stmt); m != nil {
		stmt = strings.TrimSpace(m[1])
	}
	stmt = strings.TrimSpace(strings.TrimRight(stmt, "; \n\t"))
	if stmt == "" {
		return "", fmt.Errorf("%w: empty statement", contractx.ErrReadOnlyViolation)
	}

	bare := strings.TrimSpace(literalsAndComments.ReplaceAllString(stmt, " "))
	if strings.Contains(bare, ";") {
		return "", fmt.Errorf("%w: multiple statements", contractx.ErrReadOnlyViolation)
	}

	first := strings.ToLower(firstWord(bare))
	if first != "select" && first != "with" {
		return "", fmt.Errorf("%w: statement starts with %q", contractx.ErrReadOnlyViolation, first)
	}
	if kw := writeStatement.FindString(bare); kw != "" {
		return "", fmt.Errorf("%w: %s is not allowed", contractx.ErrReadOnlyViolation, strings.ToUpper(kw))
	}
	return stmt, nil
}

func firstWord(s string) string {
	s = strings.TrimLeft(s, "( \n\t")
	if i := strings.IndexAny(s, " \n\t("); i >= 0 {
		return s[:i]
	}
	return s
}
