// Package source tracks positions inside template and expression source
// text and renders the annotated context snippets used in error messages.
package source

import (
	"fmt"
	"strings"
)

// Location is a position in a piece of source text. The zero value points
// at the start of an empty, unnamed source.
type Location struct {
	src  []rune
	name string
	file string
	ln   int
	col  int
	pos  int
}

// NewLocation returns a location at the start of src.
func NewLocation(src, name, file string) *Location {
	return &Location{src: []rune(src), name: name, file: file}
}

// FromOffset computes the line/column location of the rune offset pos in src.
func FromOffset(src string, pos int) *Location {
	loc := NewLocation(src, "", "")
	for _, c := range src {
		if loc.pos >= pos {
			break
		}
		loc.Advance(1)
		if c == '\n' {
			loc.MarkNewline()
		}
	}
	return loc
}

// Line returns the zero-based line number.
func (l *Location) Line() int { return l.ln }

// Column returns the zero-based column number.
func (l *Location) Column() int { return l.col }

// Offset returns the rune offset into the source.
func (l *Location) Offset() int { return l.pos }

// Name returns the logical name of the source, if any.
func (l *Location) Name() string { return l.name }

// File returns the file name of the source, if any.
func (l *Location) File() string { return l.file }

// Advance moves the location forward by delta runes on the current line.
func (l *Location) Advance(delta int) {
	l.pos += delta
	l.col += delta
}

// MarkNewline records that a newline was consumed.
func (l *Location) MarkNewline() {
	l.ln++
	l.col = 0
}

// Clone returns an independent copy of the location.
func (l *Location) Clone() *Location {
	c := *l
	return &c
}

// Context renders the surrounding source lines with a caret pointing at
// the location's column. Up to ctxLines lines are shown on each side.
func (l *Location) Context(ctxLines int) []string {
	return Context(string(l.src), l.ln, l.col, ctxLines)
}

// Context renders the lines of src around the zero-based line ln with a
// caret under column col. Single-line sources skip the line numbering.
func Context(src string, ln, col, ctxLines int) []string {
	lines := strings.Split(src, "\n")
	if len(lines) < 2 {
		return []string{"src: " + src, "     " + strings.Repeat(" ", col) + "^"}
	}
	if ln >= len(lines) {
		ln = len(lines) - 1
	}

	startCtx := max(ln-ctxLines, 0)
	endCtx := min(ln+ctxLines+1, len(lines))
	numWidth := len(fmt.Sprint(endCtx))

	out := make([]string, 0, endCtx-startCtx+2)
	for i := startCtx; i < ln; i++ {
		out = append(out, fmt.Sprintf("  %-*d  %s", numWidth, i, lines[i]))
	}
	for i := ln + 1; i < endCtx; i++ {
		out = append(out, fmt.Sprintf("  %-*d  %s", numWidth, i, lines[i]))
	}
	out = append(out,
		"",
		fmt.Sprintf("> %-*d%s", numWidth, ln, lines[ln]),
		fmt.Sprintf("  %-*s%s^", numWidth, "", strings.Repeat(" ", col)))
	return out
}

func (l *Location) String() string {
	ret := fmt.Sprintf("%d, %d", l.ln, l.col)
	if l.file != "" {
		ret += "(" + l.file + ")"
	}
	if l.name != "" {
		ret += l.name
	}
	return ret
}
