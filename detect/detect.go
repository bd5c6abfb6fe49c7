// Package detect finds sensitive spans in page text. A fixed list of
// pattern rules runs first; an optional entity recogniser adds labelled
// entities. Date-shaped results only survive when they look like a birth
// date, and overlapping results are resolved by offset before the set is
// keyed by text.
package detect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Peterrvisserr/WOOBARNEVELD/acquire"
	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
)

// ErrEntityPass wraps recogniser failures. The pattern spans found before
// the failure are still returned alongside it.
var ErrEntityPass = errors.New("entity recognition failed")

// Entity is one recogniser result. Start and End are byte offsets into the
// analysed text; when they do not select Text every occurrence of Text is
// used instead.
type Entity struct {
	Text  string
	Label string
	Start int
	End   int
}

// EntityRecognizer classifies substrings of a text. Implementations must be
// safe for concurrent use.
type EntityRecognizer interface {
	Analyze(ctx context.Context, text string) ([]Entity, error)
}

// YearWindow bounds the years a date may carry to count as a birth date.
type YearWindow struct {
	Min int
	Max int
}

// DefaultYearWindow runs from 1900 to sixteen years before now.
func DefaultYearWindow() YearWindow {
	return YearWindow{Min: 1900, Max: time.Now().Year() - 16}
}

var dateShape = regexp.MustCompile(`^(\d{1,2})([-/])(\d{1,2})([-/])(\d{4})$`)

// Plausible reports whether s is a DD-MM-YYYY or DD/MM/YYYY calendar date
// whose year lies inside the window.
func (w YearWindow) Plausible(s string) bool {
	m := dateShape.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || m[2] != m[4] {
		return false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[3])
	year, _ := strconv.Atoi(m[5])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return false
	}
	return year >= w.Min && year <= w.Max
}

// Detector combines the pattern and entity passes. It is read-only after
// construction and may be shared by page workers.
type Detector struct {
	rules      []Rule
	recognizer EntityRecognizer
	allowed    map[EntityLabel]bool
	window     YearWindow
	logger     observability.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithRules replaces the built-in rule list.
func WithRules(rules []Rule) Option {
	return func(d *Detector) { d.rules = rules }
}

// WithRecognizer enables the entity pass.
func WithRecognizer(r EntityRecognizer) Option {
	return func(d *Detector) { d.recognizer = r }
}

// WithAllowedLabels sets which entity labels yield spans.
func WithAllowedLabels(labels ...EntityLabel) Option {
	return func(d *Detector) {
		d.allowed = make(map[EntityLabel]bool, len(labels))
		for _, l := range labels {
			d.allowed[l] = true
		}
	}
}

// WithYearWindow sets the birth-date window.
func WithYearWindow(w YearWindow) Option {
	return func(d *Detector) { d.window = w }
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// New builds a detector. Without options it runs the built-in rules only.
func New(opts ...Option) *Detector {
	d := &Detector{
		rules:  DefaultRules(),
		window: DefaultYearWindow(),
		logger: observability.NopLogger{},
	}
	WithAllowedLabels(DefaultLabels...)(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HasRecognizer reports whether the entity pass is enabled.
func (d *Detector) HasRecognizer() bool { return d.recognizer != nil }

// PatternOnly returns a copy of d without the entity pass.
func (d *Detector) PatternOnly() *Detector {
	c := *d
	c.recognizer = nil
	return &c
}

// Detect runs both passes over the acquired text of a page.
func (d *Detector) Detect(ctx context.Context, view acquire.TextView) (SpanSet, error) {
	return d.DetectText(ctx, view.Content)
}

type occurrence struct {
	start, end int
	origin     Origin
}

// DetectText runs both passes over text. On a recogniser failure the
// pattern spans are returned with an error wrapping ErrEntityPass.
func (d *Detector) DetectText(ctx context.Context, text string) (SpanSet, error) {
	set := make(SpanSet)
	if strings.TrimSpace(text) == "" {
		return set, nil
	}
	occ := d.patternPass(text)
	var passErr error
	if d.recognizer != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entities, err := d.recognizer.Analyze(ctx, text)
		if err != nil {
			passErr = fmt.Errorf("%w: %w", ErrEntityPass, err)
			d.logger.Warn("entity pass failed, keeping pattern spans", observability.Error("error", err))
		} else {
			occ = append(occ, d.entityPass(text, entities)...)
		}
	}
	for _, o := range mergeOccurrences(occ) {
		s := strings.TrimSpace(text[o.start:o.end])
		if s == "" {
			continue
		}
		set.Add(Span{Text: s, Origin: o.origin})
	}
	d.logger.Debug("spans detected", observability.Int("count", len(set)), observability.Int("text_len", len(text)))
	return set, passErr
}

func (d *Detector) patternPass(text string) []occurrence {
	var out []occurrence
	for _, r := range d.rules {
		for _, loc := range r.Pattern.FindAllStringIndex(text, -1) {
			if loc[0] == loc[1] {
				continue
			}
			if r.Date && !d.window.Plausible(text[loc[0]:loc[1]]) {
				continue
			}
			out = append(out, occurrence{start: loc[0], end: loc[1], origin: Origin{Kind: OriginPattern, Rule: r.ID}})
		}
	}
	return out
}

func (d *Detector) entityPass(text string, entities []Entity) []occurrence {
	var out []occurrence
	for _, e := range entities {
		label := NormalizeLabel(e.Label)
		if !d.allowed[label] {
			continue
		}
		origin := Origin{Kind: OriginEntity, Label: label}
		for _, loc := range locateEntity(text, e) {
			if label == LabelDate && !d.window.Plausible(text[loc[0]:loc[1]]) {
				continue
			}
			out = append(out, occurrence{start: loc[0], end: loc[1], origin: origin})
		}
	}
	return out
}

// locateEntity returns the trimmed byte ranges an entity covers.
func locateEntity(text string, e Entity) [][2]int {
	want := strings.TrimSpace(e.Text)
	if e.Start >= 0 && e.Start < e.End && e.End <= len(text) {
		got := text[e.Start:e.End]
		if want == "" || strings.TrimSpace(got) == want {
			if r, ok := trimRange(text, e.Start, e.End); ok {
				return [][2]int{r}
			}
			return nil
		}
	}
	if want == "" {
		return nil
	}
	var out [][2]int
	for start := 0; start < len(text); {
		idx := strings.Index(text[start:], want)
		if idx < 0 {
			break
		}
		abs := start + idx
		end := abs + len(want)
		if !insideWord(text, abs, end) {
			out = append(out, [2]int{abs, end})
		}
		start = end
	}
	return out
}

func trimRange(text string, start, end int) ([2]int, bool) {
	s := text[start:end]
	lead := len(s) - len(strings.TrimLeftFunc(s, unicode.IsSpace))
	trail := len(s) - len(strings.TrimRightFunc(s, unicode.IsSpace))
	start, end = start+lead, end-trail
	return [2]int{start, end}, start < end
}

// insideWord reports whether [start,end) sits inside a longer token.
func insideWord(text string, start, end int) bool {
	if start > 0 && isWordByte(text[start-1]) {
		return true
	}
	if end < len(text) && isWordByte(text[end]) {
		return true
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_' || b >= 0x80
}

// mergeOccurrences resolves overlaps in offset space: a range nested in
// another is dropped and partially overlapping ranges are joined. The
// earliest, longest range keeps its origin.
func mergeOccurrences(occ []occurrence) []occurrence {
	sort.SliceStable(occ, func(i, j int) bool {
		if occ[i].start != occ[j].start {
			return occ[i].start < occ[j].start
		}
		return occ[i].end > occ[j].end
	})
	var out []occurrence
	for _, o := range occ {
		if n := len(out); n > 0 && o.start < out[n-1].end {
			if o.end > out[n-1].end {
				out[n-1].end = o.end
			}
			continue
		}
		out = append(out, o)
	}
	return out
}
