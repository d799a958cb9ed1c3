package process_tree

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jtomasevic/treemine/pck/errs"
)

var operatorWords = map[string]Operator{
	"→": Sequence, "->": Sequence, "seq": Sequence, "sequence": Sequence,
	"×": Xor, "X": Xor, "xor": Xor,
	"∧": Parallel, "+": Parallel, "and": Parallel, "parallel": Parallel,
	"*": Loop, "⟲": Loop, "loop": Loop,
	"FT": Fallthrough, "fallthrough": Fallthrough,
}

// Parse reads the textual form, e.g. →('a', ×('b', τ), *('c', τ)).
// An operator with no children, like →(), is read as τ.
func Parse(s string) (*Tree, error) {
	p := &parser{in: s, tree: New()}
	root, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.in) {
		return nil, p.errorf("unexpected trailing input")
	}
	p.tree.SetRoot(root)
	return p.tree, nil
}

func MustParse(s string) *Tree {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	in   string
	pos  int
	tree *Tree
}

func (p *parser) errorf(msg string) error {
	return &errs.ParseError{Input: p.in, Pos: p.pos, Msg: msg}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.in) {
		r, w := utf8.DecodeRuneInString(p.in[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += w
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.in) {
		return 0
	}
	return p.in[p.pos]
}

func (p *parser) parseNode() (NodeID, error) {
	p.skipSpace()
	if p.pos >= len(p.in) {
		return None, p.errorf("unexpected end of input")
	}
	if c := p.peek(); c == '\'' || c == '"' {
		label, err := p.quoted(c)
		if err != nil {
			return None, err
		}
		return p.tree.NewLeaf(label), nil
	}
	word := p.word()
	if word == "" {
		return None, p.errorf("expected node")
	}
	p.skipSpace()
	if p.peek() != '(' {
		if word == Tau || word == "tau" {
			return p.tree.NewTau(), nil
		}
		return p.tree.NewLeaf(word), nil
	}
	op, ok := operatorWords[word]
	if !ok {
		return None, p.errorf("unknown operator " + word)
	}
	p.pos++ // (
	n := p.tree.NewOperator(op)
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		p.tree.MakeTau(n)
		return n, nil
	}
	for {
		child, err := p.parseNode()
		if err != nil {
			return None, err
		}
		p.tree.AddChild(n, child)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return n, nil
		default:
			return None, p.errorf("expected , or )")
		}
	}
}

func (p *parser) quoted(q byte) (string, error) {
	start := p.pos
	p.pos++
	end := strings.IndexByte(p.in[p.pos:], q)
	if end < 0 {
		p.pos = start
		return "", p.errorf("unterminated label")
	}
	label := p.in[p.pos : p.pos+end]
	p.pos += end + 1
	return label, nil
}

func (p *parser) word() string {
	start := p.pos
	for p.pos < len(p.in) {
		r, w := utf8.DecodeRuneInString(p.in[p.pos:])
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == ',' || r == '\'' || r == '"' {
			break
		}
		p.pos += w
	}
	return p.in[start:p.pos]
}

// Format prints the subtree rooted at n.
func (t *Tree) Format(n NodeID) string {
	var b strings.Builder
	t.format(&b, n)
	return b.String()
}

func (t *Tree) format(b *strings.Builder, n NodeID) {
	nd := t.nodes[n]
	if nd.op == Leaf {
		if nd.silent {
			b.WriteString(Tau)
			return
		}
		b.WriteByte('\'')
		b.WriteString(nd.label)
		b.WriteByte('\'')
		return
	}
	b.WriteString(nd.op.Symbol())
	b.WriteByte('(')
	for i, c := range nd.children {
		if i > 0 {
			b.WriteString(", ")
		}
		t.format(b, c)
	}
	b.WriteByte(')')
}

func (t *Tree) String() string {
	if t.root == None {
		return ""
	}
	return t.Format(t.root)
}
