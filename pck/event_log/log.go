package event_log

import (
	"bufio"
	"fmt"
	"sort"
	"strings"
)

type Log []Trace

// Variant is a distinct trace together with how often it occurs.
type Variant struct {
	Trace Trace
	Count int
}

// Variants groups identical traces, keeping first-appearance order.
func (l Log) Variants() []Variant {
	index := make(map[string]int)
	var out []Variant
	for _, t := range l {
		k := t.Key()
		if i, ok := index[k]; ok {
			out[i].Count++
			continue
		}
		index[k] = len(out)
		out = append(out, Variant{Trace: t.Clone(), Count: 1})
	}
	return out
}

// Activities returns the sorted alphabet of the log.
func (l Log) Activities() []string {
	seen := make(map[string]struct{})
	for _, t := range l {
		for _, a := range t.Activities {
			seen[a] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (l Log) Clone() Log {
	out := make(Log, len(l))
	for i, t := range l {
		out[i] = t.Clone()
	}
	return out
}

func (l Log) WithArtificialStartEnd() Log {
	out := make(Log, len(l))
	for i, t := range l {
		out[i] = AddArtificialStartEnd(t)
	}
	return out
}

// ParseLog reads one trace per line; blank lines and lines starting with # are skipped.
func ParseLog(text string) (Log, error) {
	var out Log
	sc := bufio.NewScanner(strings.NewReader(text))
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		t, err := ParseTrace(s)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, t)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FromEvents builds a log from raw event lists.
func FromEvents(traces [][]Event) (Log, error) {
	out := make(Log, 0, len(traces))
	for i, evs := range traces {
		t, err := TraceFromEvents(evs)
		if err != nil {
			return nil, fmt.Errorf("trace %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}
