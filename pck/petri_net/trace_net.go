package petri_net

import (
	"fmt"

	"github.com/jtomasevic/treemine/pck/process_tree"
)

// TraceNet is the sequential net q0 -a1-> q1 -a2-> ... qn of a trace.
// Transition i fires activity i.
func TraceNet(activities []string) *Net {
	net := New("trace")
	prev := net.AddPlace("q0")
	for i, a := range activities {
		next := net.AddPlace(fmt.Sprintf("q%d", i+1))
		tr := net.AddTransition(fmt.Sprintf("e%d", i), a, Origin{Node: process_tree.None})
		net.AddInputArc(prev, tr)
		net.AddOutputArc(tr, next)
		prev = next
	}
	net.Initial = net.Marking(0)
	net.Final = net.Marking(prev.ID)
	return net
}
