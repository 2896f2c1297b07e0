// ABOUTME: Per-rune rendering styles for statements and regex highlights
// ABOUTME: Two passes, backgrounds then foregrounds, last write wins

// Package overlay resolves how annotations and regex matches color a text.
//
// Statements paint backgrounds in the order the store returned them and
// regex highlights paint foregrounds afterwards, again in store order. A
// later paint overwrites an earlier one on overlap; nothing is blended.
package overlay

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/nainya/annostore/pkg/model"
	"github.com/nainya/annostore/pkg/permission"
)

// Style is the resolved color pair of one rune
type Style struct {
	Foreground model.Color
	Background model.Color
}

// DefaultStyle is black text on white
var DefaultStyle = Style{Foreground: model.Black, Background: model.White}

// Run is a maximal range [Start, End) of runes sharing one style
type Run struct {
	Start int
	End   int
	Style
}

// Highlight is a compiled regex definition
type Highlight struct {
	Label string
	Color model.Color
	re    *regexp.Regexp
}

// CompileHighlights compiles regex definitions case-insensitively, keeping
// store order. Invalid labels are skipped and reported in the joined error.
func CompileHighlights(regexes []model.Regex) ([]Highlight, error) {
	out := make([]Highlight, 0, len(regexes))
	var errs []error
	for _, r := range regexes {
		re, err := regexp.Compile("(?i)" + r.Label)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: regex %q: %v", model.ErrValidation, r.Label, err))
			continue
		}
		out = append(out, Highlight{Label: r.Label, Color: r.Color, re: re})
	}
	return out, errors.Join(errs...)
}

// Paint computes the style of every rune of text.
// Statement spans are clamped to the text; statements the actor may not
// view are skipped.
func Paint(text string, statements []model.Statement, types map[int]model.StatementType, highlights []Highlight, actor model.Coder) []Style {
	runes := []rune(text)
	styles := make([]Style, len(runes))
	for i := range styles {
		styles[i] = DefaultStyle
	}

	for _, s := range statements {
		if !permission.CanView(actor, s) {
			continue
		}
		bg := types[s.StatementTypeID].Color
		if actor.ColorByCoder {
			bg = s.CoderColor
		}
		start, stop := clamp(s.Start, len(runes)), clamp(s.Stop, len(runes))
		for i := start; i < stop; i++ {
			styles[i].Background = bg
		}
	}

	if len(highlights) == 0 {
		return styles
	}
	offsets := model.RuneOffsets(text)
	for _, h := range highlights {
		for _, m := range h.re.FindAllStringIndex(text, -1) {
			start, stop := offsets[m[0]], offsets[m[1]]
			for i := start; i < stop; i++ {
				styles[i].Foreground = h.Color
			}
		}
	}
	return styles
}

// Runs merges adjacent runes with equal styles
func Runs(styles []Style) []Run {
	var runs []Run
	for i, st := range styles {
		if n := len(runs); n > 0 && runs[n-1].Style == st {
			runs[n-1].End = i + 1
			continue
		}
		runs = append(runs, Run{Start: i, End: i + 1, Style: st})
	}
	return runs
}

// Compute paints text and returns the merged runs
func Compute(text string, statements []model.Statement, types map[int]model.StatementType, highlights []Highlight, actor model.Coder) []Run {
	return Runs(Paint(text, statements, types, highlights, actor))
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
