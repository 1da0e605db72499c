// Package transcript merges speech-recognition fragments into the text of one answer.
package transcript

import (
	"iter"
	"slices"
	"strings"
)

// Kind tags a recognition fragment.
type Kind uint8

const (
	// KindStatus is a transient recognizer status (listening, no-speech, ...). Never text.
	KindStatus Kind = iota
	// KindPartial is interim text that a later final fragment supersedes.
	KindPartial
	// KindFinal is recognized text that belongs to the answer.
	KindFinal
)

var kindNames = [...]string{
	KindStatus:  "status",
	KindPartial: "partial",
	KindFinal:   "final",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind maps a wire name to a Kind. Unknown names are statuses.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "final":
		return KindFinal
	case "partial", "interim":
		return KindPartial
	default:
		return KindStatus
	}
}

// Fragment is one incremental unit emitted by a recognizer.
type Fragment struct {
	Kind Kind
	Text string
}

// Final is shorthand for a final fragment.
func Final(text string) Fragment {
	return Fragment{Kind: KindFinal, Text: text}
}

// Status is shorthand for a status fragment.
func Status(text string) Fragment {
	return Fragment{Kind: KindStatus, Text: text}
}

// Merge joins the text of final fragments with a single space, in arrival order.
// Statuses, partials and blank finals are skipped.
func Merge(fragments iter.Seq[Fragment]) string {
	var b strings.Builder
	for f := range fragments {
		if f.Kind != KindFinal {
			continue
		}

		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}

	return b.String()
}

// Accumulator keeps every fragment of one capture cycle. Not safe for concurrent use.
type Accumulator struct {
	fragments []Fragment
	text      string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add appends f and recomputes the text from all fragments received so far.
func (a *Accumulator) Add(f Fragment) {
	a.fragments = append(a.fragments, f)
	a.text = Merge(slices.Values(a.fragments))
}

func (a *Accumulator) Text() string {
	return a.text
}

func (a *Accumulator) Len() int {
	return len(a.fragments)
}
