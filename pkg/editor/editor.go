// ABOUTME: Statement and regex mutations on behalf of an acting coder
// ABOUTME: Checks rights, validates, writes through the store and rolls back on failure

package editor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nainya/annostore/internal/logger"
	"github.com/nainya/annostore/pkg/model"
	"github.com/nainya/annostore/pkg/permission"
)

// Store is the slice of the persistence layer the editor writes through
type Store interface {
	UpdateStatement(ctx context.Context, statementID int, values []model.Variable, coderID int) ([]model.Entity, error)
	Coders(ctx context.Context) ([]model.Coder, error)
	AddRegex(ctx context.Context, r model.Regex) error
	DeleteRegexes(ctx context.Context, labels []string) error
}

// EntitySink is the taxonomy that receives entities resolved during a save
type EntitySink interface {
	Get(id int) (model.Entity, bool)
	AddEntity(e model.Entity) error
}

// Editor applies statement and regex changes
type Editor struct {
	store Store
	sink  EntitySink
	log   *logger.Logger
}

// New creates an editor. sink and log may be nil.
func New(store Store, sink EntitySink, log *logger.Logger) *Editor {
	return &Editor{store: store, sink: sink, log: log}
}

// Save replaces the values of s and reassigns it to coderID.
//
// It reports whether anything differs from the current statement. With
// simulate set, nothing is written and s is left untouched. When the store
// write fails, s is restored to its previous contents.
func (ed *Editor) Save(ctx context.Context, actor model.Coder, s *model.Statement, values []model.Variable, coderID int, simulate bool) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("%w: nil statement", model.ErrValidation)
	}
	if !permission.CanEdit(actor, *s) {
		return false, fmt.Errorf("%w: coder %d may not edit statement %d of coder %d",
			model.ErrPermissionDenied, actor.ID, s.ID, s.CoderID)
	}
	if coderID != s.CoderID && !permission.CanEditStatement(actor, coderID) {
		return false, fmt.Errorf("%w: coder %d may not assign statement %d to coder %d",
			model.ErrPermissionDenied, actor.ID, s.ID, coderID)
	}
	for _, v := range values {
		if err := v.Validate(); err != nil {
			return false, fmt.Errorf("statement %d: %w", s.ID, err)
		}
	}

	changed := coderID != s.CoderID || !sameValues(s.Values, values)
	if !changed || simulate {
		return changed, nil
	}

	prev := s.Clone()
	s.Values = append([]model.Variable(nil), values...)
	s.CoderID = coderID

	resolved, err := ed.store.UpdateStatement(ctx, s.ID, values, coderID)
	if err != nil {
		*s = prev
		ed.log.Error("statement save rolled back").
			Int("statement_id", s.ID).
			Int("coder_id", actor.ID).
			Err(err).
			Send()
		return false, fmt.Errorf("save statement %d: %w", s.ID, err)
	}

	linked := ed.adopt(s, resolved)
	if coderID != prev.CoderID {
		ed.recolor(ctx, s)
	}

	ed.log.Debug("statement saved").
		Int("statement_id", s.ID).
		Int("owner_id", coderID).
		Int("linked_entities", linked).
		Send()
	return true, nil
}

// adopt swaps unsaved entity refs for their stored forms and links the ones
// the taxonomy does not know yet. It returns how many were linked.
func (ed *Editor) adopt(s *model.Statement, resolved []model.Entity) int {
	linked := 0
	for _, e := range resolved {
		if ed.sink != nil {
			if _, known := ed.sink.Get(e.ID); !known {
				if err := ed.sink.AddEntity(e); err != nil {
					ed.log.Warn("stored entity not linked").
						Int("entity_id", e.ID).
						Err(err).
						Send()
				} else {
					linked++
				}
			}
		}
		for i, v := range s.Values {
			ref, ok := v.Value.(model.EntityRef)
			if !ok || v.VariableID != e.VariableID || ref.Entity.Value != e.Value {
				continue
			}
			if ref.Entity.ID == model.UnsavedID || !ref.Entity.InDatabase {
				s.Values[i].Value = model.EntityRef{Entity: e}
			}
		}
	}
	return linked
}

// recolor refreshes the owner color after a recode; failures keep the old color
func (ed *Editor) recolor(ctx context.Context, s *model.Statement) {
	coders, err := ed.store.Coders(ctx)
	if err != nil {
		ed.log.Warn("coder color not refreshed").Int("statement_id", s.ID).Err(err).Send()
		return
	}
	for _, c := range coders {
		if c.ID == s.CoderID {
			s.CoderColor = c.Color
			return
		}
	}
}

// sameValues compares two value lists by variable, ignoring order
func sameValues(old, next []model.Variable) bool {
	if len(old) != len(next) {
		return false
	}
	byVar := make(map[int]model.Value, len(old))
	for _, v := range old {
		byVar[v.VariableID] = v.Value
	}
	for _, v := range next {
		cur, ok := byVar[v.VariableID]
		if !ok || !model.EqualValues(cur, v.Value) {
			return false
		}
	}
	return true
}

// AddRegex stores a highlight pattern after checking it compiles
func (ed *Editor) AddRegex(ctx context.Context, actor model.Coder, r model.Regex) error {
	if !permission.CanEditRegex(actor) {
		return fmt.Errorf("%w: coder %d may not edit regexes", model.ErrPermissionDenied, actor.ID)
	}
	if strings.TrimSpace(r.Label) == "" {
		return fmt.Errorf("%w: empty regex", model.ErrValidation)
	}
	if _, err := regexp.Compile("(?i)" + r.Label); err != nil {
		return fmt.Errorf("%w: regex %q: %w", model.ErrValidation, r.Label, err)
	}
	if err := ed.store.AddRegex(ctx, r); err != nil {
		return fmt.Errorf("add regex %q: %w", r.Label, err)
	}
	return nil
}

// DeleteRegexes removes highlight patterns by label
func (ed *Editor) DeleteRegexes(ctx context.Context, actor model.Coder, labels []string) error {
	if !permission.CanEditRegex(actor) {
		return fmt.Errorf("%w: coder %d may not edit regexes", model.ErrPermissionDenied, actor.ID)
	}
	if len(labels) == 0 {
		return nil
	}
	if err := ed.store.DeleteRegexes(ctx, labels); err != nil {
		return fmt.Errorf("delete regexes: %w", err)
	}
	return nil
}

// IsPermissionDenied reports whether err stems from a missing right
func IsPermissionDenied(err error) bool {
	return errors.Is(err, model.ErrPermissionDenied)
}
