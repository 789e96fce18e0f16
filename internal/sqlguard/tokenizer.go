package sqlguard

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind classifies a lexical SQL token.
type TokenKind int

const (
	TokenWord TokenKind = iota
	TokenQuotedIdent
	TokenString
	TokenNumber
	TokenOperator
	TokenPunct
	TokenLineComment
	TokenBlockComment
)

// Token is a single lexical unit of a SQL statement.
type Token struct {
	Kind  TokenKind
	Value string
	Pos   int
}

// IsComment reports whether the token is a line or block comment.
func (t Token) IsComment() bool {
	return t.Kind == TokenLineComment || t.Kind == TokenBlockComment
}

// Upper returns the token text uppercased when it is a bare word.
func (t Token) Upper() string {
	if t.Kind != TokenWord {
		return t.Value
	}
	return strings.ToUpper(t.Value)
}

// SyntaxError reports a lexical error such as an unterminated literal.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}

// Tokenize splits SQL text into tokens. Whitespace is dropped; comments are kept.
func Tokenize(sql string) ([]Token, error) {
	var tokens []Token
	runes := []rune(sql)
	n := len(runes)

	for i := 0; i < n; {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < n && runes[i+1] == '-':
			start := i
			for i < n && runes[i] != '\n' {
				i++
			}
			tokens = append(tokens, Token{Kind: TokenLineComment, Value: string(runes[start:i]), Pos: start})

		case r == '/' && i+1 < n && runes[i+1] == '*':
			start := i
			end := indexFrom(runes, i+2, "*/")
			if end < 0 {
				return nil, &SyntaxError{Pos: start, Msg: "unterminated block comment"}
			}
			i = end + 2
			tokens = append(tokens, Token{Kind: TokenBlockComment, Value: string(runes[start:i]), Pos: start})

		case r == '\'':
			end, err := scanQuoted(runes, i, '\'')
			if err != nil {
				return nil, &SyntaxError{Pos: i, Msg: "unterminated string literal"}
			}
			tokens = append(tokens, Token{Kind: TokenString, Value: string(runes[i:end]), Pos: i})
			i = end

		case r == '"' || r == '`':
			end, err := scanQuoted(runes, i, r)
			if err != nil {
				return nil, &SyntaxError{Pos: i, Msg: "unterminated quoted identifier"}
			}
			tokens = append(tokens, Token{Kind: TokenQuotedIdent, Value: string(runes[i:end]), Pos: i})
			i = end

		case r == '[':
			end := indexFrom(runes, i+1, "]")
			if end < 0 {
				return nil, &SyntaxError{Pos: i, Msg: "unterminated bracketed identifier"}
			}
			tokens = append(tokens, Token{Kind: TokenQuotedIdent, Value: string(runes[i : end+1]), Pos: i})
			i = end + 1

		case unicode.IsDigit(r) || (r == '.' && i+1 < n && unicode.IsDigit(runes[i+1])):
			start := i
			for i < n && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			if i < n && (runes[i] == 'e' || runes[i] == 'E') {
				j := i + 1
				if j < n && (runes[j] == '+' || runes[j] == '-') {
					j++
				}
				if j < n && unicode.IsDigit(runes[j]) {
					i = j
					for i < n && unicode.IsDigit(runes[i]) {
						i++
					}
				}
			}
			tokens = append(tokens, Token{Kind: TokenNumber, Value: string(runes[start:i]), Pos: start})

		case isWordStart(r):
			start := i
			for i < n && isWordPart(runes[i]) {
				i++
			}
			tokens = append(tokens, Token{Kind: TokenWord, Value: string(runes[start:i]), Pos: start})

		case strings.ContainsRune("(),;.", r):
			tokens = append(tokens, Token{Kind: TokenPunct, Value: string(r), Pos: i})
			i++

		default:
			start := i
			op := string(r)
			if i+1 < n {
				if two := string(runes[i : i+2]); isTwoCharOperator(two) {
					op = two
				}
			}
			i += len([]rune(op))
			tokens = append(tokens, Token{Kind: TokenOperator, Value: op, Pos: start})
		}
	}

	return tokens, nil
}

// scanQuoted returns the index just past the closing quote. A doubled quote is an escape.
func scanQuoted(runes []rune, start int, quote rune) (int, error) {
	for i := start + 1; i < len(runes); i++ {
		if runes[i] != quote {
			continue
		}
		if i+1 < len(runes) && runes[i+1] == quote {
			i++
			continue
		}
		return i + 1, nil
	}
	return 0, fmt.Errorf("unterminated")
}

func indexFrom(runes []rune, from int, needle string) int {
	rest := string(runes[from:])
	idx := strings.Index(rest, needle)
	if idx < 0 {
		return -1
	}
	return from + utf8.RuneCountInString(rest[:idx])
}

func isWordStart(r rune) bool {
	return r == '_' || r == '@' || r == '$' || r == '#' || unicode.IsLetter(r)
}

func isWordPart(r rune) bool {
	return r == '_' || r == '$' || r == '#' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isTwoCharOperator(s string) bool {
	switch s {
	case "<=", ">=", "<>", "!=", "||", "::", "->", "=>", "<<", ">>":
		return true
	}
	return false
}

// significant drops comments from a token stream.
func significant(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if !tok.IsComment() {
			out = append(out, tok)
		}
	}
	return out
}
