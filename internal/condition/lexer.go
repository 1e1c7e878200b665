package condition

import (
	"strings"
	"unicode"

	"github.com/smukkama/tsa/internal/evalerr"
)

type tokenKind uint8

const (
	tokBlock tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokBlock:
		return "block"
	case tokAnd:
		return "and"
	case tokOr:
		return "or"
	case tokNot:
		return "not"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	}
	return "?"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer splits an expression into parentheses, the keywords and/or/not and
// block texts. Consecutive words that are not keywords form one block text;
// a parenthesized tuple directly after the word "in" belongs to the block.
type lexer struct {
	src    []rune
	tokens []token

	words    []string
	blockPos int
}

func tokenize(src string) ([]token, error) {
	l := &lexer{src: []rune(src)}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) run() error {
	i := 0
	for i < len(l.src) {
		c := l.src[i]
		switch {
		case unicode.IsSpace(c):
			i++

		case c == '(':
			if n := len(l.words); n > 0 && strings.EqualFold(l.words[n-1], "in") {
				end := l.closing(i)
				if end < 0 {
					return evalerr.New(evalerr.KindParse, "unterminated tuple at position %d", i)
				}
				l.words = append(l.words, string(l.src[i:end+1]))
				i = end + 1
				continue
			}
			l.flush()
			l.tokens = append(l.tokens, token{kind: tokLParen, text: "(", pos: i})
			i++

		case c == ')':
			l.flush()
			l.tokens = append(l.tokens, token{kind: tokRParen, text: ")", pos: i})
			i++

		default:
			start := i
			for i < len(l.src) && !unicode.IsSpace(l.src[i]) && l.src[i] != '(' && l.src[i] != ')' {
				i++
			}
			l.word(string(l.src[start:i]), start)
		}
	}
	l.flush()
	return nil
}

func (l *lexer) word(w string, pos int) {
	var kind tokenKind
	switch strings.ToLower(w) {
	case "and":
		kind = tokAnd
	case "or":
		kind = tokOr
	case "not":
		kind = tokNot
	default:
		if len(l.words) == 0 {
			l.blockPos = pos
		}
		l.words = append(l.words, w)
		return
	}
	l.flush()
	l.tokens = append(l.tokens, token{kind: kind, text: strings.ToLower(w), pos: pos})
}

func (l *lexer) flush() {
	if len(l.words) == 0 {
		return
	}
	l.tokens = append(l.tokens, token{kind: tokBlock, text: strings.Join(l.words, " "), pos: l.blockPos})
	l.words = l.words[:0]
}

// closing returns the index of the ')' closing the tuple opened at open, or -1
func (l *lexer) closing(open int) int {
	for j := open + 1; j < len(l.src); j++ {
		switch l.src[j] {
		case ')':
			return j
		case '(':
			return -1
		}
	}
	return -1
}
