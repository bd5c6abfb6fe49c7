// Package report collects the outcome of a redaction run and renders it as
// JSON, Markdown or HTML.
package report

import (
	"sync"
	"time"
)

// PageReport is the outcome for one page. Page is 1-based.
type PageReport struct {
	Page       int           `json:"page"`
	TextSource string        `json:"text_source"`
	Detected   int           `json:"detected"`
	Located    int           `json:"located"`
	Unlocated  []string      `json:"unlocated,omitempty"`
	Marks      int           `json:"marks"`
	Glyphs     int           `json:"glyphs_removed"`
	Warnings   []string      `json:"warnings,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Report is the outcome of one run. Pages are ordered by page number.
type Report struct {
	Source       string        `json:"source,omitempty"`
	SourceDigest string        `json:"source_digest"`
	Pages        []PageReport  `json:"pages"`
	Rasterized   bool          `json:"rasterized"`
	PatternOnly  bool          `json:"pattern_only"`
	Warnings     []string      `json:"warnings,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
}

// Totals sums the page counters of a report.
type Totals struct {
	Pages     int `json:"pages"`
	Detected  int `json:"detected"`
	Located   int `json:"located"`
	Unlocated int `json:"unlocated"`
	Marks     int `json:"marks"`
	Glyphs    int `json:"glyphs_removed"`
	Warnings  int `json:"warnings"`
}

// Totals returns the summed counters.
func (r *Report) Totals() Totals {
	t := Totals{Pages: len(r.Pages), Warnings: len(r.Warnings)}
	for _, p := range r.Pages {
		t.Detected += p.Detected
		t.Located += p.Located
		t.Unlocated += len(p.Unlocated)
		t.Marks += p.Marks
		t.Glyphs += p.Glyphs
		t.Warnings += len(p.Warnings)
	}
	return t
}

// HasUnlocated reports whether any page left a span unlocated.
func (r *Report) HasUnlocated() bool {
	for _, p := range r.Pages {
		if len(p.Unlocated) > 0 {
			return true
		}
	}
	return false
}

// HasWarnings reports whether the run or any page recorded a warning.
func (r *Report) HasWarnings() bool {
	if len(r.Warnings) > 0 {
		return true
	}
	for _, p := range r.Pages {
		if len(p.Warnings) > 0 {
			return true
		}
	}
	return false
}

// Collector gathers page reports from concurrent workers. Each page owns a
// slot, so the final order does not depend on completion order.
type Collector struct {
	mu     sync.Mutex
	report Report
	filled []bool
}

// NewCollector prepares a collector for pages pages.
func NewCollector(source, digest string, pages int, started time.Time) *Collector {
	c := &Collector{
		report: Report{
			Source:       source,
			SourceDigest: digest,
			Pages:        make([]PageReport, pages),
			StartedAt:    started,
		},
		filled: make([]bool, pages),
	}
	for i := range c.report.Pages {
		c.report.Pages[i].Page = i + 1
	}
	return c
}

// Record stores p in its slot. Reports for unknown pages are ignored.
func (c *Collector) Record(p PageReport) {
	i := p.Page - 1
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.report.Pages) {
		return
	}
	c.report.Pages[i] = p
	c.filled[i] = true
}

// Warn adds a run-level warning.
func (c *Collector) Warn(msg string) {
	c.mu.Lock()
	c.report.Warnings = append(c.report.Warnings, msg)
	c.mu.Unlock()
}

// SetRasterized records whether pages were replaced by renderings.
func (c *Collector) SetRasterized(on bool) {
	c.mu.Lock()
	c.report.Rasterized = on
	c.mu.Unlock()
}

// SetPatternOnly records that the entity pass was skipped.
func (c *Collector) SetPatternOnly(on bool) {
	c.mu.Lock()
	c.report.PatternOnly = on
	c.mu.Unlock()
}

// Finish stamps the duration and returns a copy of the report. Pages never
// recorded keep only their page number.
func (c *Collector) Finish(now time.Time) *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.report
	r.Pages = append([]PageReport(nil), c.report.Pages...)
	r.Warnings = append([]string(nil), c.report.Warnings...)
	r.Duration = now.Sub(r.StartedAt)
	return &r
}

// Missing returns the 1-based numbers of pages that were never recorded.
func (c *Collector) Missing() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int
	for i, ok := range c.filled {
		if !ok {
			out = append(out, i+1)
		}
	}
	return out
}
