package sqlguard

import "strings"

// reservedWords are uppercased by the formatter and never read as table names.
var reservedWords = toSet(
	"ALL", "ALTER", "AND", "ANY", "AS", "ASC", "BETWEEN", "BY", "CASE", "CREATE",
	"CROSS", "DELETE", "DESC", "DISTINCT", "DROP", "ELSE", "END", "EXCEPT", "EXEC",
	"EXISTS", "FALSE", "FETCH", "FIRST", "FROM", "FULL", "GRANT", "GROUP", "HAVING",
	"ILIKE", "IN", "INNER", "INSERT", "INTERSECT", "INTERVAL", "INTO", "IS", "JOIN",
	"LAST", "LATERAL", "LEFT", "LIKE", "LIMIT", "MERGE", "NATURAL", "NEXT", "NOT",
	"NULL", "NULLS", "OFFSET", "ON", "ONLY", "OR", "ORDER", "OUTER", "OVER",
	"PARTITION", "RECURSIVE", "REVOKE", "RIGHT", "ROWS", "SELECT", "SET", "SOME",
	"TABLE", "THEN", "TRUE", "TRUNCATE", "UNION", "UPDATE", "USING", "VALUES",
	"WHEN", "WHERE", "WINDOW", "WITH",
)

var clauseStarters = toSet(
	"SELECT", "FROM", "WHERE", "GROUP", "ORDER", "HAVING", "LIMIT", "OFFSET",
	"UNION", "EXCEPT", "INTERSECT", "WINDOW", "VALUES", "SET",
)

var joinModifiers = toSet("INNER", "LEFT", "RIGHT", "FULL", "CROSS", "NATURAL")

const selectIndent = "       " // aligns continuation lines under the first select item

// format renders tokens with uppercase keywords and one major clause per line.
// Comments are dropped.
func format(tokens []Token) string {
	toks := significant(tokens)

	var (
		b              strings.Builder
		depth          int
		clause         string
		betweenPending bool
	)

	for i, tok := range toks {
		upper := tok.Upper()
		text := tok.Value
		if tok.Kind == TokenWord && reservedWords[upper] {
			text = upper
		}

		sep := " "
		if i == 0 {
			sep = ""
		} else if noSpaceBetween(toks[i-1], tok) {
			sep = ""
		}

		if i > 0 && toks[i-1].Kind == TokenPunct && toks[i-1].Value == ";" {
			sep = "\n"
			clause = ""
		}

		if i == 0 && tok.Kind == TokenWord {
			clause = upper
		}
		if depth == 0 && i > 0 && tok.Kind == TokenWord {
			switch {
			case breaksClause(toks, i):
				sep = "\n"
				clause = upper
				if joinModifiers[upper] || upper == "JOIN" {
					clause = "JOIN"
				}
			case upper == "BETWEEN":
				betweenPending = true
			case upper == "AND" && betweenPending:
				betweenPending = false
			case (upper == "AND" || upper == "OR") && (clause == "WHERE" || clause == "HAVING"):
				sep = "\n  "
			}
		}

		if depth == 0 && clause == "SELECT" && tok.Kind == TokenPunct && tok.Value == "," {
			b.WriteString(",\n" + selectIndent)
			continue
		}
		if i > 0 && toks[i-1].Kind == TokenPunct && toks[i-1].Value == "," && depth == 0 && clause == "SELECT" {
			sep = ""
		}

		b.WriteString(sep)
		b.WriteString(text)

		if tok.Kind == TokenPunct {
			switch tok.Value {
			case "(":
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
			}
		}
	}

	return strings.TrimSpace(b.String())
}

func breaksClause(toks []Token, i int) bool {
	upper := toks[i].Upper()
	prev := toks[i-1]
	nextIsParen := i+1 < len(toks) && toks[i+1].Kind == TokenPunct && toks[i+1].Value == "("

	switch {
	case upper == "SELECT":
		return !(prev.Kind == TokenPunct && prev.Value == "(")
	case clauseStarters[upper]:
		return true
	case joinModifiers[upper]:
		// LEFT(name, 3) is a function call, not a join.
		return !nextIsParen && !(prev.Kind == TokenWord && joinModifiers[prev.Upper()])
	case upper == "JOIN":
		p := prev.Upper()
		return !(prev.Kind == TokenWord && (joinModifiers[p] || p == "OUTER"))
	}
	return false
}

func noSpaceBetween(prev, tok Token) bool {
	if tok.Kind == TokenPunct {
		switch tok.Value {
		case ",", ";", ")", ".":
			return true
		case "(":
			return prev.Kind == TokenQuotedIdent ||
				(prev.Kind == TokenWord && (!reservedWords[prev.Upper()] || joinModifiers[prev.Upper()]))
		}
	}
	if tok.Kind == TokenOperator && tok.Value == "::" {
		return true
	}
	if prev.Kind == TokenPunct && (prev.Value == "(" || prev.Value == ".") {
		return true
	}
	if prev.Kind == TokenOperator && prev.Value == "::" {
		return true
	}
	return false
}

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
