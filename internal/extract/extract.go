// Package extract pulls a single SQL statement out of free-form model output.
//
// It is a text transform only. The result is not guaranteed to be valid SQL.
package extract

import (
	"regexp"
	"strings"
)

const fence = "```"

var (
	sqlFenceRe    = regexp.MustCompile("(?is)```[ \\t]*sql\\b[ \\t]*(.*?)```")
	anyFenceRe    = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+-]*[ \\t]*\\n)?(.*?)```")
	sqlKeywordRe  = regexp.MustCompile(`(?i)\b(SELECT|WITH)\b`)
	explanationRe = regexp.MustCompile(`(?i)\bExplanation\s*:`)
)

// SQL returns the statement found in raw, in order of preference:
// the body of a sql-tagged fence, the body of any fence, the text from the
// first SELECT or WITH keyword, or the whole input. The last two are cut at a
// following fence marker or "Explanation:" label.
func SQL(raw string) string {
	if m := sqlFenceRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := anyFenceRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}

	candidate := raw
	if loc := sqlKeywordRe.FindStringIndex(raw); loc != nil {
		candidate = raw[loc[0]:]
	}
	return strings.TrimSpace(trimTrailingProse(candidate))
}

func trimTrailingProse(s string) string {
	cut := len(s)
	if idx := strings.Index(s, fence); idx >= 0 && idx < cut {
		cut = idx
	}
	if loc := explanationRe.FindStringIndex(s); loc != nil && loc[0] < cut {
		cut = loc[0]
	}
	return s[:cut]
}
