// ABOUTME: Filter criteria for statement tables
// ABOUTME: Fluent builder over display mode, type, id and per-variable patterns

package filter

import (
	"fmt"

	"github.com/nainya/annostore/pkg/model"
)

// Mode selects which statements a table shows
type Mode int

const (
	ModeAll Mode = iota
	ModeCurrentDocument
	ModeFiltered
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeCurrentDocument:
		return "current"
	case ModeFiltered:
		return "filtered"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts the names returned by String
func ParseMode(s string) (Mode, error) {
	switch s {
	case "all":
		return ModeAll, nil
	case "current":
		return ModeCurrentDocument, nil
	case "filtered":
		return ModeFiltered, nil
	}
	return 0, fmt.Errorf("%w: unknown filter mode %q", model.ErrValidation, s)
}

// VariablePattern is a regex applied to one variable's value
type VariablePattern struct {
	Key     string
	Pattern string // Empty means unconstrained
}

// Criteria is the complete state of the filter controls
type Criteria struct {
	Mode             Mode
	ActiveDocumentID int
	StatementTypeID  int
	IDPattern        string
	Variables        []VariablePattern
}

// Builder provides a fluent interface for building criteria
type Builder struct {
	criteria Criteria
}

// NewBuilder starts criteria in the given mode
func NewBuilder(mode Mode) *Builder {
	return &Builder{criteria: Criteria{Mode: mode}}
}

// Document sets the active document
func (b *Builder) Document(id int) *Builder {
	b.criteria.ActiveDocumentID = id
	return b
}

// Type sets the statement type to match
func (b *Builder) Type(id int) *Builder {
	b.criteria.StatementTypeID = id
	return b
}

// ID sets the statement id pattern
func (b *Builder) ID(pattern string) *Builder {
	b.criteria.IDPattern = pattern
	return b
}

// Where adds a variable pattern
func (b *Builder) Where(key, pattern string) *Builder {
	b.criteria.Variables = append(b.criteria.Variables, VariablePattern{Key: key, Pattern: pattern})
	return b
}

// Build returns the constructed criteria
func (b *Builder) Build() Criteria {
	c := b.criteria
	c.Variables = append([]VariablePattern(nil), b.criteria.Variables...)
	return c
}
