package condition

import (
	"fmt"

	"github.com/smukkama/tsa/internal/evalerr"
	"github.com/smukkama/tsa/internal/interval"
)

// NodeKind tags the variants of an expression tree node
type NodeKind uint8

const (
	NodeLeaf NodeKind = iota
	NodeNot
	NodeAnd
	NodeOr
)

// Node is an expression tree node. A leaf refers to a block by its index in
// the condition; NOT uses Left as its operand.
type Node struct {
	Kind  NodeKind
	Block int
	Left  *Node
	Right *Node
}

func (n *Node) precedence() int {
	switch n.Kind {
	case NodeOr:
		return 1
	case NodeAnd:
		return 2
	case NodeNot:
		return 3
	}
	return 4
}

// Format renders the tree with names[i] standing for block i, adding only
// the parentheses needed to keep its structure
func (n *Node) Format(names []string) string {
	switch n.Kind {
	case NodeLeaf:
		if n.Block < len(names) {
			return names[n.Block]
		}
		return fmt.Sprintf("#%d", n.Block)
	case NodeNot:
		return "not " + n.Left.wrap(names, n.Left.precedence() < n.precedence())
	case NodeAnd, NodeOr:
		op := "and"
		if n.Kind == NodeOr {
			op = "or"
		}
		left := n.Left.wrap(names, n.Left.precedence() < n.precedence())
		right := n.Right.wrap(names, n.Right.precedence() <= n.precedence())
		return left + " " + op + " " + right
	}
	return "?"
}

func (n *Node) wrap(names []string, paren bool) string {
	if paren {
		return "(" + n.Format(names) + ")"
	}
	return n.Format(names)
}

// Eval walks the tree bottom-up, combining the block sequences with the
// interval algebra
func (n *Node) Eval(blocks []interval.Sequence) (interval.Sequence, error) {
	switch n.Kind {
	case NodeLeaf:
		if n.Block < 0 || n.Block >= len(blocks) {
			return nil, fmt.Errorf("block %d out of range", n.Block)
		}
		return blocks[n.Block], nil

	case NodeNot:
		seq, err := n.Left.Eval(blocks)
		if err != nil {
			return nil, err
		}
		return interval.Not(seq), nil

	case NodeAnd, NodeOr:
		left, err := n.Left.Eval(blocks)
		if err != nil {
			return nil, err
		}
		right, err := n.Right.Eval(blocks)
		if err != nil {
			return nil, err
		}
		op := interval.OpAnd
		if n.Kind == NodeOr {
			op = interval.OpOr
		}
		return interval.Combine(op, left, right)
	}
	return nil, fmt.Errorf("invalid node kind %d", n.Kind)
}

// parser is a recursive descent parser over the token stream:
//
//	expr    = term { "or" term }
//	term    = factor { "and" factor }
//	factor  = "not" factor | operand
//	operand = block | "(" expr ")"
type parser struct {
	tokens []token
	pos    int
	leaf   func(text string) int
}

func parse(tokens []token, leaf func(text string) int) (*Node, error) {
	if len(tokens) == 0 {
		return nil, evalerr.New(evalerr.KindParse, "empty expression")
	}
	p := &parser{tokens: tokens, leaf: leaf}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t, ok := p.peek(); ok {
		return nil, p.unexpected(t)
	}
	return n, nil
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) accept(kind tokenKind) bool {
	if t, ok := p.peek(); ok && t.kind == kind {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expr() (*Node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.accept(tokOr) {
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: NodeOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) term() (*Node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.accept(tokAnd) {
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: NodeAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) factor() (*Node, error) {
	if p.accept(tokNot) {
		operand, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeNot, Left: operand}, nil
	}
	return p.operand()
}

func (p *parser) operand() (*Node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, evalerr.New(evalerr.KindParse, "unexpected end of expression, operand missing")
	}

	switch t.kind {
	case tokBlock:
		p.pos++
		return &Node{Kind: NodeLeaf, Block: p.leaf(t.text)}, nil
	case tokLParen:
		p.pos++
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		if !p.accept(tokRParen) {
			return nil, evalerr.New(evalerr.KindParse, "missing \")\" for \"(\" at position %d", t.pos)
		}
		return n, nil
	}
	return nil, p.unexpected(t)
}

func (p *parser) unexpected(t token) error {
	return evalerr.New(evalerr.KindParse, "unexpected %q at position %d", t.text, t.pos)
}
