package sqlguard

import (
	"sort"
	"strings"
)

// StatementUnknown is returned when the leading keyword is not a recognised statement.
const StatementUnknown = "UNKNOWN"

var statementKeywords = map[string]bool{
	"SELECT":   true,
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"MERGE":    true,
	"REPLACE":  true,
	"UPSERT":   true,
	"CREATE":   true,
	"DROP":     true,
	"ALTER":    true,
	"TRUNCATE": true,
	"GRANT":    true,
	"REVOKE":   true,
}

// SplitStatements splits a token stream on semicolons and drops empty statements,
// so a trailing terminator does not count as a second statement.
func SplitStatements(tokens []Token) [][]Token {
	var (
		statements [][]Token
		current    []Token
	)
	flush := func() {
		if len(significant(current)) > 0 {
			statements = append(statements, current)
		}
		current = nil
	}
	for _, tok := range tokens {
		if tok.Kind == TokenPunct && tok.Value == ";" {
			flush()
			continue
		}
		current = append(current, tok)
	}
	flush()
	return statements
}

// StatementType returns the statement keyword, resolving WITH to the statement
// that follows its common table expressions.
func StatementType(tokens []Token) string {
	toks := significant(tokens)
	i := 0
	for i < len(toks) && toks[i].Kind == TokenPunct && toks[i].Value == "(" {
		i++
	}
	if i >= len(toks) || toks[i].Kind != TokenWord {
		return StatementUnknown
	}

	first := toks[i].Upper()
	if statementKeywords[first] {
		return first
	}
	if first != "WITH" {
		return StatementUnknown
	}

	depth := 0
	for _, tok := range toks[i+1:] {
		switch {
		case tok.Kind == TokenPunct && tok.Value == "(":
			depth++
		case tok.Kind == TokenPunct && tok.Value == ")":
			depth--
		case depth == 0 && tok.Kind == TokenWord && statementKeywords[tok.Upper()]:
			return tok.Upper()
		}
	}
	return StatementUnknown
}

// Analysis describes a single parsed statement.
type Analysis struct {
	Type      string   `json:"type"`
	Tables    []string `json:"tables"`
	Formatted string   `json:"formatted"`
}

// Analyze reports the statement type and the tables a query reads or writes.
// Names defined as common table expressions are not reported as tables.
func Analyze(sql string) (*Analysis, error) {
	tokens, err := Tokenize(sql)
	if err != nil {
		return nil, err
	}
	statements := SplitStatements(tokens)
	if len(statements) == 0 {
		return &Analysis{Type: StatementUnknown, Tables: []string{}}, nil
	}

	stmt := significant(statements[0])
	return &Analysis{
		Type:      StatementType(stmt),
		Tables:    referencedTables(stmt),
		Formatted: format(statements[0]),
	}, nil
}

var tableIntroducers = map[string]bool{
	"FROM":   true,
	"JOIN":   true,
	"INTO":   true,
	"UPDATE": true,
	"TABLE":  true,
}

func referencedTables(toks []Token) []string {
	cteNames := commonTableNames(toks)
	seen := make(map[string]bool)
	var tables []string

	add := func(name string) {
		key := strings.ToLower(name)
		if name == "" || cteNames[key] || seen[key] {
			return
		}
		seen[key] = true
		tables = append(tables, name)
	}

	// Parentheses opened by a function call, e.g. EXTRACT(YEAR FROM d), never introduce tables.
	var callParens []bool
	for i := 0; i < len(toks); i++ {
		switch {
		case toks[i].Kind == TokenPunct && toks[i].Value == "(":
			call := i > 0 && toks[i-1].Kind == TokenWord && !reservedWords[toks[i-1].Upper()]
			callParens = append(callParens, call)
			continue
		case toks[i].Kind == TokenPunct && toks[i].Value == ")":
			if len(callParens) > 0 {
				callParens = callParens[:len(callParens)-1]
			}
			continue
		}
		if len(callParens) > 0 && callParens[len(callParens)-1] {
			continue
		}
		if toks[i].Kind != TokenWord || !tableIntroducers[toks[i].Upper()] {
			continue
		}
		introducer := toks[i].Upper()
		j := i + 1
		for {
			name, next := qualifiedName(toks, j)
			if name == "" {
				break
			}
			add(name)
			if introducer != "FROM" {
				break
			}
			// FROM a x, b y lists several tables.
			next = skipAlias(toks, next)
			if next < len(toks) && toks[next].Kind == TokenPunct && toks[next].Value == "," {
				j = next + 1
				continue
			}
			break
		}
	}

	sort.Strings(tables)
	if tables == nil {
		tables = []string{}
	}
	return tables
}

// qualifiedName reads schema.table style names starting at i.
func qualifiedName(toks []Token, i int) (string, int) {
	var parts []string
	for i < len(toks) {
		tok := toks[i]
		if tok.Kind != TokenWord && tok.Kind != TokenQuotedIdent {
			break
		}
		if tok.Kind == TokenWord && reservedWords[tok.Upper()] {
			break
		}
		parts = append(parts, unquote(tok.Value))
		i++
		if i < len(toks) && toks[i].Kind == TokenPunct && toks[i].Value == "." {
			i++
			continue
		}
		break
	}
	return strings.Join(parts, "."), i
}

func skipAlias(toks []Token, i int) int {
	if i < len(toks) && toks[i].Kind == TokenWord && toks[i].Upper() == "AS" {
		i++
	}
	if i < len(toks) && (toks[i].Kind == TokenQuotedIdent || (toks[i].Kind == TokenWord && !reservedWords[toks[i].Upper()])) {
		i++
	}
	return i
}

func commonTableNames(toks []Token) map[string]bool {
	names := make(map[string]bool)
	if len(toks) == 0 || toks[0].Upper() != "WITH" {
		return names
	}
	depth := 0
	expectName := true
	for _, tok := range toks[1:] {
		switch {
		case tok.Kind == TokenPunct && tok.Value == "(":
			depth++
		case tok.Kind == TokenPunct && tok.Value == ")":
			depth--
		case depth == 0 && tok.Kind == TokenPunct && tok.Value == ",":
			expectName = true
		case depth == 0 && expectName && (tok.Kind == TokenWord || tok.Kind == TokenQuotedIdent):
			if tok.Upper() == "RECURSIVE" {
				continue
			}
			if statementKeywords[tok.Upper()] {
				return names
			}
			names[strings.ToLower(unquote(tok.Value))] = true
			expectName = false
		case depth == 0 && tok.Kind == TokenWord && statementKeywords[tok.Upper()]:
			return names
		}
	}
	return names
}

func unquote(s string) string {
	if len(s) >= 2 {
		switch s[0] {
		case '"', '`':
			return s[1 : len(s)-1]
		case '[':
			return s[1 : len(s)-1]
		}
	}
	return s
}
