package event_log

import (
	"errors"
	"testing"

	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/stretchr/testify/require"
)

func TestParseTrace(t *testing.T) {
	tr, err := ParseTrace("<a, b,'c'>")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, tr.Activities)
	require.Equal(t, Full, tr.Kind)
	require.Equal(t, "<a,b,c>", tr.String())

	tr, err = ParseTrace("infix:<b,c>")
	require.NoError(t, err)
	require.Equal(t, Infix, tr.Kind)
	require.Equal(t, "infix:<b,c>", tr.String())

	tr, err = ParseTrace("<>")
	require.NoError(t, err)
	require.Zero(t, tr.Len())

	_, err = ParseTrace("a,b")
	require.True(t, errors.Is(err, errs.ErrParse))
	_, err = ParseTrace("<a,,b>")
	require.True(t, errors.Is(err, errs.ErrParse))
	_, err = ParseTrace("middle:<a>")
	require.True(t, errors.Is(err, errs.ErrParse))
}

func TestParseLogAndVariants(t *testing.T) {
	log, err := ParseLog(`
# comment
<a,b>
<a,b>
prefix:<a>
<a,c>
`)
	require.NoError(t, err)
	require.Len(t, log, 4)
	vs := log.Variants()
	require.Len(t, vs, 3)
	require.Equal(t, 2, vs[0].Count)
	require.Equal(t, Prefix, vs[1].Trace.Kind)
	require.Equal(t, []string{"a", "b", "c"}, log.Activities())

	_, err = ParseLog("<a>\nbroken")
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
}

func TestArtificialStartEnd(t *testing.T) {
	full := AddArtificialStartEnd(NewTrace("a", "b"))
	require.Equal(t, []string{ArtificialStart, "a", "b", ArtificialEnd}, full.Activities)
	pre := AddArtificialStartEnd(NewFragment(Prefix, "a"))
	require.Equal(t, []string{ArtificialStart, "a"}, pre.Activities)
	post := AddArtificialStartEnd(NewFragment(Postfix, "a"))
	require.Equal(t, []string{"a", ArtificialEnd}, post.Activities)
	in := AddArtificialStartEnd(NewFragment(Infix, "a"))
	require.Equal(t, []string{"a"}, in.Activities)

	require.True(t, RemoveArtificialStartEnd(full).Equal(NewTrace("a", "b")))
}

func TestFromEvents(t *testing.T) {
	log, err := FromEvents([][]Event{
		{{Properties: EventProps{ConceptName: "a"}}, {Properties: EventProps{ConceptName: "b", "org:resource": "x"}}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, log[0].Activities)

	_, err = FromEvents([][]Event{{{Properties: EventProps{"org:resource": "x"}}}})
	require.True(t, errors.Is(err, errs.ErrParse))
}
