package transcript_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/einterview/internal/transcript"
)

func TestMerge(t *testing.T) {
	tests := map[string]struct {
		fragments []transcript.Fragment
		want      string
	}{
		"no fragments gives an empty answer": {
			fragments: nil,
			want:      "",
		},
		"finals are joined by a single space in arrival order": {
			fragments: []transcript.Fragment{
				transcript.Final("I would use"),
				transcript.Final("a hash map"),
				transcript.Final("for O(1) lookups"),
			},
			want: "I would use a hash map for O(1) lookups",
		},
		"statuses and partials are filtered out": {
			fragments: []transcript.Fragment{
				transcript.Status("listening"),
				transcript.Final("first"),
				{Kind: transcript.KindPartial, Text: "sec"},
				transcript.Status("no-speech"),
				transcript.Final("second"),
			},
			want: "first second",
		},
		"blank finals do not produce double spaces": {
			fragments: []transcript.Fragment{
				transcript.Final("one"),
				transcript.Final("   "),
				transcript.Final(""),
				transcript.Final(" two "),
			},
			want: "one two",
		},
		"only noise gives an empty answer": {
			fragments: []transcript.Fragment{
				transcript.Status("error"),
				{Kind: transcript.Kind(42), Text: "garbage"},
			},
			want: "",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, transcript.Merge(slices.Values(tt.fragments)))
		})
	}
}

func TestMerge_EqualsJoinOfFinals(t *testing.T) {
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta"}

	for seed := 0; seed < 64; seed++ {
		var (
			fragments []transcript.Fragment
			finals    []string
		)

		for i, w := range words {
			switch (seed >> (i % 6)) % 3 {
			case 0:
				fragments = append(fragments, transcript.Final(w))
				finals = append(finals, w)
			case 1:
				fragments = append(fragments, transcript.Status(w))
			default:
				fragments = append(fragments, transcript.Fragment{Kind: transcript.KindPartial, Text: w})
			}
		}

		assert.Equal(t, strings.Join(finals, " "), transcript.Merge(slices.Values(fragments)), "seed %d", seed)
	}
}

func TestAccumulator_Add(t *testing.T) {
	a := transcript.NewAccumulator()
	assert.Equal(t, "", a.Text())

	a.Add(transcript.Final("hello"))
	assert.Equal(t, "hello", a.Text())

	a.Add(transcript.Status("listening"))
	assert.Equal(t, "hello", a.Text())

	a.Add(transcript.Final("world"))
	assert.Equal(t, "hello world", a.Text())
	assert.Equal(t, 3, a.Len())
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, transcript.KindFinal, transcript.ParseKind("FINAL"))
	assert.Equal(t, transcript.KindPartial, transcript.ParseKind("interim"))
	assert.Equal(t, transcript.KindStatus, transcript.ParseKind("no-speech"))
	assert.Equal(t, "final", transcript.KindFinal.String())
}
