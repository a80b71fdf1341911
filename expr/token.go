package expr

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWhen
	tokThen
	tokElse
	tokAnd
	tokOr
	tokNot
	tokExist
	tokTrue
	tokFalse
	tokNull
	tokOp     // gt lt eq neq gte lte contains starts_with ends_with
	tokPath   // $.dotted.path[0]
	tokTag    // #state-tag
	tokString // 'literal'
	tokNumber
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokComma
	tokColon
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

var keywords = map[string]tokenKind{
	"when":  tokWhen,
	"then":  tokThen,
	"else":  tokElse,
	"and":   tokAnd,
	"or":    tokOr,
	"not":   tokNot,
	"exist": tokExist,
	"true":  tokTrue,
	"false": tokFalse,
	"null":  tokNull,
}

var operators = map[string]bool{
	"gt":          true,
	"lt":          true,
	"eq":          true,
	"neq":         true,
	"gte":         true,
	"lte":         true,
	"contains":    true,
	"starts_with": true,
	"ends_with":   true,
}

// lex tokenizes a single normalized statement. Unknown bare words are
// rejected here: in this language every identifier position is either a
// keyword or a comparison operator.
func lex(statement string) ([]token, error) {
	var tokens []token
	i := 0

	fail := func(pos int, err error, format string, args ...any) ([]token, error) {
		return nil, &SyntaxError{
			Statement: statement,
			Pos:       pos,
			Err:       fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...)),
		}
	}

	for i < len(statement) {
		c := statement[i]

		switch {
		case c == ' ':
			i++

		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '[':
			tokens = append(tokens, token{kind: tokLBracket, text: "[", pos: i})
			i++
		case c == ']':
			tokens = append(tokens, token{kind: tokRBracket, text: "]", pos: i})
			i++
		case c == '{':
			tokens = append(tokens, token{kind: tokLBrace, text: "{", pos: i})
			i++
		case c == '}':
			tokens = append(tokens, token{kind: tokRBrace, text: "}", pos: i})
			i++
		case c == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == ':':
			tokens = append(tokens, token{kind: tokColon, text: ":", pos: i})
			i++

		case c == '\'':
			end := strings.IndexByte(statement[i+1:], '\'')
			if end < 0 {
				return fail(i, ErrMalformedStatement, "unterminated string literal")
			}
			tokens = append(tokens, token{
				kind: tokString,
				text: statement[i+1 : i+1+end],
				pos:  i,
			})
			i += end + 2

		case c == '$':
			start := i
			i++
			for i < len(statement) && isPathChar(statement[i]) {
				i++
			}
			path := statement[start:i]
			if !strings.HasPrefix(path, "$.") {
				return fail(start, ErrMalformedStatement, "JSONPath must start with $.")
			}
			tokens = append(tokens, token{kind: tokPath, text: path, pos: start})

		case c == '#':
			start := i
			i++
			for i < len(statement) && isTagChar(statement[i]) {
				i++
			}
			if i == start+1 {
				return fail(start, ErrMalformedStatement, "empty state tag")
			}
			tokens = append(tokens, token{kind: tokTag, text: statement[start+1 : i], pos: start})

		case c >= '0' && c <= '9' || c == '-' && i+1 < len(statement) && statement[i+1] >= '0' && statement[i+1] <= '9':
			start := i
			i++
			for i < len(statement) && (statement[i] >= '0' && statement[i] <= '9' || statement[i] == '.') {
				i++
			}
			text := statement[start:i]
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return fail(start, ErrMalformedStatement, "bad number literal %q", text)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: num, pos: start})

		case isWordChar(c):
			start := i
			for i < len(statement) && isWordChar(statement[i]) {
				i++
			}
			word := statement[start:i]
			if kind, ok := keywords[word]; ok {
				tokens = append(tokens, token{kind: kind, text: word, pos: start})
			} else if operators[word] {
				tokens = append(tokens, token{kind: tokOp, text: word, pos: start})
			} else {
				return fail(start, ErrInvalidOperator, "unknown word %q", word)
			}

		default:
			return fail(i, ErrMalformedStatement, "unexpected character %q", string(c))
		}
	}

	tokens = append(tokens, token{kind: tokEOF, pos: len(statement)})
	return tokens, nil
}

func isPathChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '.' || c == '-' || c == '[' || c == ']' || c == '*'
}

func isTagChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '-'
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
