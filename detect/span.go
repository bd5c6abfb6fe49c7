package detect

import "sort"

// OriginKind tells which pass produced a span.
type OriginKind int

const (
	OriginPattern OriginKind = iota
	OriginEntity
)

func (k OriginKind) String() string {
	if k == OriginEntity {
		return "entity"
	}
	return "pattern"
}

// Origin records the rule or recogniser label behind a span.
type Origin struct {
	Kind  OriginKind
	Rule  string
	Label EntityLabel
}

func (o Origin) String() string {
	if o.Kind == OriginEntity {
		return "entity:" + string(o.Label)
	}
	return "pattern:" + o.Rule
}

// Span is a piece of text judged sensitive.
type Span struct {
	Text   string
	Origin Origin
}

// SpanSet holds spans keyed by their exact text. The first origin seen for
// a text is kept.
type SpanSet map[string]Span

// Add inserts s unless a span with the same text is present.
func (set SpanSet) Add(s Span) bool {
	if _, ok := set[s.Text]; ok {
		return false
	}
	set[s.Text] = s
	return true
}

// Contains reports whether text is in the set.
func (set SpanSet) Contains(text string) bool {
	_, ok := set[text]
	return ok
}

// Sorted returns the spans ordered by text. Detection order carries no
// meaning; sorting only makes output stable.
func (set SpanSet) Sorted() []Span {
	out := make([]Span, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

// Texts returns the sorted span texts.
func (set SpanSet) Texts() []string {
	spans := set.Sorted()
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}
