package event_log

import (
	"fmt"
	"strings"

	"github.com/jtomasevic/treemine/pck/errs"
)

// ConceptName is the event attribute holding the activity label.
const ConceptName = "concept:name"

// Reserved labels used to mark synthetic trace boundaries.
const (
	ArtificialStart = "▶ARTIFICIAL_START"
	ArtificialEnd   = "■ARTIFICIAL_END"
)

// Kind says which part of a complete execution a trace covers.
type Kind int

const (
	Full Kind = iota
	Prefix
	Infix
	Postfix
)

func (k Kind) String() string {
	switch k {
	case Prefix:
		return "prefix"
	case Infix:
		return "infix"
	case Postfix:
		return "postfix"
	default:
		return "full"
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full", "trace":
		return Full, nil
	case "prefix":
		return Prefix, nil
	case "infix":
		return Infix, nil
	case "postfix":
		return Postfix, nil
	}
	return Full, &errs.ParseError{Input: s, Msg: "unknown trace kind"}
}

type EventProps = map[string]any

// Event is a single log entry; only ConceptName is required.
type Event struct {
	Properties EventProps
}

func (e Event) Activity() (string, bool) {
	v, ok := e.Properties[ConceptName]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Trace is an ordered sequence of activity labels.
type Trace struct {
	Activities []string
	Kind       Kind
}

func NewTrace(activities ...string) Trace {
	return Trace{Activities: append([]string(nil), activities...)}
}

func NewFragment(kind Kind, activities ...string) Trace {
	return Trace{Activities: append([]string(nil), activities...), Kind: kind}
}

// TraceFromEvents reduces events to their activity labels.
func TraceFromEvents(events []Event) (Trace, error) {
	out := make([]string, 0, len(events))
	for i, e := range events {
		a, ok := e.Activity()
		if !ok {
			return Trace{}, &errs.ParseError{Input: fmt.Sprintf("%v", e.Properties), Pos: i, Msg: "event without " + ConceptName}
		}
		out = append(out, a)
	}
	return Trace{Activities: out}, nil
}

func (t Trace) Len() int { return len(t.Activities) }

func (t Trace) IsFragment() bool { return t.Kind != Full }

func (t Trace) Clone() Trace {
	return Trace{Activities: append([]string(nil), t.Activities...), Kind: t.Kind}
}

func (t Trace) String() string {
	s := "<" + strings.Join(t.Activities, ",") + ">"
	if t.Kind != Full {
		return t.Kind.String() + ":" + s
	}
	return s
}

// Key identifies the variant of the trace, including its kind.
func (t Trace) Key() string {
	return t.Kind.String() + "\x00" + strings.Join(t.Activities, "\x00")
}

func (t Trace) Equal(o Trace) bool {
	if t.Kind != o.Kind || len(t.Activities) != len(o.Activities) {
		return false
	}
	for i := range t.Activities {
		if t.Activities[i] != o.Activities[i] {
			return false
		}
	}
	return true
}

// ParseTrace reads "<a,b,c>" optionally prefixed by a kind: "infix:<b,c>".
func ParseTrace(s string) (Trace, error) {
	raw := strings.TrimSpace(s)
	kind := Full
	if i := strings.Index(raw, ":<"); i >= 0 {
		k, err := ParseKind(raw[:i])
		if err != nil {
			return Trace{}, &errs.ParseError{Input: s, Pos: 0, Msg: "unknown trace kind"}
		}
		kind = k
		raw = raw[i+1:]
	}
	if !strings.HasPrefix(raw, "<") || !strings.HasSuffix(raw, ">") {
		return Trace{}, &errs.ParseError{Input: s, Pos: 0, Msg: "trace must be enclosed in <>"}
	}
	body := strings.TrimSpace(raw[1 : len(raw)-1])
	if body == "" {
		return Trace{Kind: kind}, nil
	}
	parts := strings.Split(body, ",")
	acts := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), "'\"")
		if p == "" {
			return Trace{}, &errs.ParseError{Input: s, Pos: i, Msg: "empty activity"}
		}
		acts = append(acts, p)
	}
	return Trace{Activities: acts, Kind: kind}, nil
}

func MustParseTrace(s string) Trace {
	t, err := ParseTrace(s)
	if err != nil {
		panic(err)
	}
	return t
}

// AddArtificialStartEnd wraps a trace with the reserved boundary labels.
// Prefixes only get a start, postfixes only an end, infixes neither.
func AddArtificialStartEnd(t Trace) Trace {
	out := make([]string, 0, len(t.Activities)+2)
	if t.Kind == Full || t.Kind == Prefix {
		out = append(out, ArtificialStart)
	}
	out = append(out, t.Activities...)
	if t.Kind == Full || t.Kind == Postfix {
		out = append(out, ArtificialEnd)
	}
	return Trace{Activities: out, Kind: t.Kind}
}

func RemoveArtificialStartEnd(t Trace) Trace {
	out := make([]string, 0, len(t.Activities))
	for _, a := range t.Activities {
		if a == ArtificialStart || a == ArtificialEnd {
			continue
		}
		out = append(out, a)
	}
	return Trace{Activities: out, Kind: t.Kind}
}
