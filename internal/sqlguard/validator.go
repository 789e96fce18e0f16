// Package sqlguard checks generated SQL before it is returned to a caller.
//
// Validation is keyword and pattern based over the raw text; it does not build
// a full syntax tree. A statement that fails validation must never be executed.
package sqlguard

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bull/text2sql-server/internal/observability"
)

// Validator error messages.
const (
	MsgEmpty              = "SQL query is empty"
	MsgUnrecognized       = "Unrecognized SQL statement"
	MsgMultipleStatements = "Multiple SQL statements not allowed"
)

// DangerousKeywords are rejected wherever they appear as whole words.
var DangerousKeywords = []string{
	"DROP", "DELETE", "TRUNCATE", "ALTER", "CREATE",
	"INSERT", "UPDATE", "GRANT", "REVOKE", "EXEC",
}

var (
	explainRe    = regexp.MustCompile(`(?i)^EXPLAIN\s+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	readQueryRe  = regexp.MustCompile(`(?i)^\s*(SELECT|WITH)\b`)

	dangerousRes = compileKeywords(DangerousKeywords)
)

// injectionPatterns only ever produce warnings; they also match legitimate analytical SQL.
var injectionPatterns = []string{
	`'\s*OR\s*'`,
	`'\s*OR\s+\d+\s*=\s*\d+`,
	`--`,
	`/\*.*\*/`,
	`;\s*DROP`,
	`UNION\s+SELECT`,
}

var injectionRes = compilePatterns(injectionPatterns)

// Result is the outcome of validating one SQL string.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validator runs the safety checks over generated SQL.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a validator. A nil logger uses slog.Default().
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger}
}

// Validate normalizes sql and runs the emptiness, denylist, injection, syntax
// and single-statement checks in that order. Warnings never affect IsValid.
func (v *Validator) Validate(sql string) Result {
	result := Result{Errors: []string{}, Warnings: []string{}}
	reject := func(reason, msg string) {
		result.Errors = append(result.Errors, msg)
		observability.RecordValidationRejection(reason)
	}

	normalized, statements, tokErr := analyze(sql)
	if normalized == "" {
		reject("empty", MsgEmpty)
		v.logger.Debug("SQL validation finished", "valid", false, "errors", result.Errors)
		return result
	}

	for i, re := range dangerousRes {
		if re.MatchString(normalized) {
			reject("dangerous_keyword", fmt.Sprintf("Dangerous operation detected: %s", DangerousKeywords[i]))
		}
	}

	for i, re := range injectionRes {
		if re.MatchString(normalized) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Potential SQL injection pattern: %s", injectionPatterns[i]))
		}
	}

	if tokErr != nil {
		reject("syntax", fmt.Sprintf("Syntax error: %v", tokErr))
	} else {
		if len(statements) > 0 && StatementType(statements[0]) == StatementUnknown && !readQueryRe.MatchString(normalized) {
			reject("syntax", MsgUnrecognized)
		}
		if len(statements) > 1 {
			reject("multiple_statements", MsgMultipleStatements)
		}
	}

	result.IsValid = len(result.Errors) == 0
	v.logger.Debug("SQL validation finished",
		"valid", result.IsValid,
		"errors", result.Errors,
		"warnings", result.Warnings,
	)
	return result
}

// Sanitize reformats SQL with uppercase keywords and one clause per line.
// It is a presentation step and must only be applied to SQL that passed Validate.
func (v *Validator) Sanitize(sql string) string {
	tokens, err := Tokenize(sql)
	if err != nil {
		return strings.TrimSpace(sql)
	}
	return format(tokens)
}

// Normalize strips comments and a leading EXPLAIN, then collapses whitespace.
// Comment markers inside string literals and quoted identifiers are kept.
func Normalize(sql string) string {
	normalized, _, _ := analyze(sql)
	return normalized
}

// analyze tokenizes sql and returns the normalized text together with its
// statements. When sql cannot be tokenized, only whitespace is collapsed so
// the keyword checks still see every character.
func analyze(sql string) (string, [][]Token, error) {
	tokens, err := Tokenize(sql)
	if err != nil {
		s := explainRe.ReplaceAllString(strings.TrimSpace(sql), "")
		return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " ")), nil, err
	}

	body := significant(tokens)
	if len(body) > 0 && body[0].Upper() == "EXPLAIN" {
		body = body[1:]
	}
	return joinTokens(body), SplitStatements(body), nil
}

// joinTokens rebuilds text from tokens, with one space wherever the source had
// whitespace or a comment between two tokens.
func joinTokens(tokens []Token) string {
	var b strings.Builder
	end := -1
	for _, tok := range tokens {
		if end >= 0 && tok.Pos > end {
			b.WriteByte(' ')
		}
		b.WriteString(tok.Value)
		end = tok.Pos + utf8.RuneCountInString(tok.Value)
	}
	return b.String()
}
