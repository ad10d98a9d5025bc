// Package guard protects the backing database from machine-generated SQL.
// It pairs a lexical read-only validator with a query executor that enforces
// timeout and row-count guardrails.
package guard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Keywords that indicate data modification or procedure invocation. The check
// is lexical and matches whole words anywhere in the input, including inside
// quoted text. That can reject a legitimate SELECT whose string literal
// mentions DELETE; this fail-closed tradeoff is deliberate and must not be
// relaxed without widening the threat model.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE",
	"TRUNCATE", "MERGE", "GRANT", "REVOKE", "EXECUTE", "CALL",
}

var keywordPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)

// ErrReadOnlyViolation marks statements rejected by the validator.
var ErrReadOnlyViolation = errors.New("read-only violation")

// ViolationError carries the specific reason a statement was rejected.
// Keyword is set when a forbidden keyword triggered the rejection.
type ViolationError struct {
	Keyword string
	Reason  string
}

func (e *ViolationError) Error() string {
	if e.Keyword != "" {
		return fmt.Sprintf("read-only violation: statement contains forbidden keyword %s", e.Keyword)
	}
	return "read-only violation: " + e.Reason
}

func (e *ViolationError) Unwrap() error { return ErrReadOnlyViolation }

// Validate checks that sqlText is a single read-only statement. It succeeds
// silently for SELECT/WITH-only input and otherwise returns a ViolationError.
func Validate(sqlText string) error {
	if match := keywordPattern.FindStringSubmatch(sqlText); match != nil {
		return &ViolationError{Keyword: strings.ToUpper(match[1])}
	}
	if hasSecondStatement(sqlText) {
		return &ViolationError{Reason: "batched multi-statement input is not allowed"}
	}
	switch leadingKeyword(sqlText) {
	case "SELECT", "WITH":
		return nil
	default:
		return &ViolationError{Reason: "only SELECT and WITH statements are allowed"}
	}
}

// hasSecondStatement reports whether a statement delimiter is followed by
// further content. Delimiters inside single-quoted literals do not count; a
// single trailing semicolon is tolerated.
func hasSecondStatement(sqlText string) bool {
	var inString bool
	for i, r := range sqlText {
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if inString {
				continue
			}
			if strings.TrimSpace(sqlText[i+1:]) != "" {
				return true
			}
		}
	}
	return false
}

func leadingKeyword(sqlText string) string {
	fields := strings.Fields(sqlText)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimLeft(fields[0], "("))
}
