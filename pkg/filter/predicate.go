// ABOUTME: Statement filter predicate over permissions, mode and regex fields
// ABOUTME: Patterns compile once per criteria change; evaluation is pure

package filter

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/nainya/annostore/pkg/model"
	"github.com/nainya/annostore/pkg/permission"
)

type compiledVar struct {
	key string
	re  *regexp.Regexp
}

// Predicate decides whether a statement row is shown
type Predicate struct {
	actor    model.Coder
	criteria Criteria
	idRe     *regexp.Regexp
	vars     []compiledVar
}

// New compiles the criteria for an acting coder.
// A malformed pattern fails here, before any row is evaluated.
func New(actor model.Coder, c Criteria) (*Predicate, error) {
	p := &Predicate{actor: actor, criteria: c}

	if c.IDPattern != "" {
		re, err := regexp.Compile(c.IDPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: id pattern %q: %v", model.ErrValidation, c.IDPattern, err)
		}
		p.idRe = re
	}

	for _, v := range c.Variables {
		if v.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern for %q: %v", model.ErrValidation, v.Key, err)
		}
		p.vars = append(p.vars, compiledVar{key: v.Key, re: re})
	}

	return p, nil
}

// Criteria returns the criteria the predicate was built from
func (p *Predicate) Criteria() Criteria {
	return p.criteria
}

// Evaluate reports whether s passes the filter
func (p *Predicate) Evaluate(s model.Statement) bool {
	if !permission.CanView(p.actor, s) {
		return false
	}

	switch p.criteria.Mode {
	case ModeAll:
		return true
	case ModeCurrentDocument:
		return s.DocumentID == p.criteria.ActiveDocumentID
	case ModeFiltered:
		return p.matches(s)
	}
	return false
}

func (p *Predicate) matches(s model.Statement) bool {
	if s.StatementTypeID != p.criteria.StatementTypeID {
		return false
	}
	if p.idRe != nil && !p.idRe.MatchString(strconv.Itoa(s.ID)) {
		return false
	}
	for _, v := range p.vars {
		var text string
		if val, ok := s.Value(v.key); ok {
			text = model.FormatValue(val.Value)
		}
		if !v.re.MatchString(text) {
			return false
		}
	}
	return true
}

// Apply returns the statements that pass, in input order
func (p *Predicate) Apply(rows []model.Statement) []model.Statement {
	out := make([]model.Statement, 0, len(rows))
	for _, s := range rows {
		if p.Evaluate(s) {
			out = append(out, s)
		}
	}
	return out
}
