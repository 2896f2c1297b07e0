// ABOUTME: In-memory entity taxonomy stored as an arena indexed by id
// ABOUTME: Parent links are integers; children buckets are kept sorted by id

package entity

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/nainya/annostore/pkg/model"
)

// Tree holds variable roots and their entity values.
// It is not safe for concurrent mutation; callers serialize writes.
type Tree struct {
	entities   map[int]model.Entity
	childrenOf map[int][]int
}

// NewTree creates an empty taxonomy
func NewTree() *Tree {
	return &Tree{
		entities:   make(map[int]model.Entity),
		childrenOf: make(map[int][]int),
	}
}

// Len returns the number of entities including roots
func (t *Tree) Len() int {
	return len(t.entities)
}

// Get returns the entity with the given id
func (t *Tree) Get(id int) (model.Entity, bool) {
	e, ok := t.entities[id]
	return e, ok
}

// AddEntity inserts e, or replaces and re-links an entity with the same id.
// Non-root entities need an existing parent and must not close a cycle.
func (t *Tree) AddEntity(e model.Entity) error {
	if e.ID == model.UnsavedID {
		return fmt.Errorf("add %q: %w", e.Value, ErrUnsaved)
	}
	if !e.IsRoot() {
		if _, ok := t.entities[e.ParentID]; !ok {
			return fmt.Errorf("add entity %d: parent %d: %w", e.ID, e.ParentID, ErrDanglingParent)
		}
		if t.reaches(e.ParentID, e.ID) {
			return fmt.Errorf("add entity %d under %d: %w", e.ID, e.ParentID, ErrCycleDetected)
		}
	}
	t.insert(e)
	return nil
}

// Load inserts entities in any order and then verifies every parent chain.
// The first integrity fault is returned; entities stay inserted either way.
func (t *Tree) Load(entities []model.Entity) error {
	for _, e := range entities {
		if e.ID == model.UnsavedID {
			return fmt.Errorf("load %q: %w", e.Value, ErrUnsaved)
		}
		t.insert(e)
	}
	for _, e := range entities {
		if _, err := t.PathToRoot(e.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) insert(e model.Entity) {
	if old, ok := t.entities[e.ID]; ok {
		t.detach(old)
	}
	t.entities[e.ID] = e
	if e.IsRoot() {
		return
	}
	bucket := t.childrenOf[e.ParentID]
	i := sort.SearchInts(bucket, e.ID)
	t.childrenOf[e.ParentID] = slices.Insert(bucket, i, e.ID)
}

func (t *Tree) detach(e model.Entity) {
	if e.IsRoot() {
		return
	}
	bucket := t.childrenOf[e.ParentID]
	i := sort.SearchInts(bucket, e.ID)
	if i < len(bucket) && bucket[i] == e.ID {
		bucket = slices.Delete(bucket, i, i+1)
	}
	if len(bucket) == 0 {
		delete(t.childrenOf, e.ParentID)
		return
	}
	t.childrenOf[e.ParentID] = bucket
}

// reaches reports whether walking up from start visits target
func (t *Tree) reaches(start, target int) bool {
	seen := make(map[int]struct{})
	for id := start; ; {
		if id == target {
			return true
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
		e, ok := t.entities[id]
		if !ok || e.IsRoot() {
			return false
		}
		id = e.ParentID
	}
}

// RemoveEntities deletes entities and detaches them from their parents.
// Children of a removed entity stay in the arena; remove a Subtree to drop them.
func (t *Tree) RemoveEntities(ids ...int) {
	for _, id := range ids {
		e, ok := t.entities[id]
		if !ok {
			continue
		}
		t.detach(e)
		delete(t.entities, id)
	}
}

// PathToRoot returns the chain root, ..., entity.
// Cycles and dangling parents fail instead of looping.
func (t *Tree) PathToRoot(id int) ([]model.Entity, error) {
	e, ok := t.entities[id]
	if !ok {
		return nil, fmt.Errorf("path to root of %d: %w", id, ErrNotFound)
	}

	seen := map[int]struct{}{id: {}}
	path := []model.Entity{e}
	for !e.IsRoot() {
		parent, ok := t.entities[e.ParentID]
		if !ok {
			return nil, fmt.Errorf("path to root of %d: parent %d of %d: %w", id, e.ParentID, e.ID, ErrDanglingParent)
		}
		if _, dup := seen[parent.ID]; dup {
			return nil, fmt.Errorf("path to root of %d: revisited %d: %w", id, parent.ID, ErrCycleDetected)
		}
		seen[parent.ID] = struct{}{}
		path = append(path, parent)
		e = parent
	}

	slices.Reverse(path)
	return path, nil
}

// PathString joins the values of PathToRoot with " > "
func (t *Tree) PathString(id int) (string, error) {
	path, err := t.PathToRoot(id)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(path))
	for i, e := range path {
		parts[i] = e.Value
	}
	return strings.Join(parts, " > "), nil
}

// Children returns the direct children of id sorted by id
func (t *Tree) Children(id int) []model.Entity {
	bucket := t.childrenOf[id]
	out := make([]model.Entity, 0, len(bucket))
	for _, cid := range bucket {
		out = append(out, t.entities[cid])
	}
	return out
}

// Roots returns every variable root sorted by variable id
func (t *Tree) Roots() []model.Entity {
	var roots []model.Entity
	for _, e := range t.entities {
		if e.IsRoot() {
			roots = append(roots, e)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].VariableID < roots[j].VariableID })
	return roots
}

// ByVariable returns the non-root entities of a variable sorted by id
func (t *Tree) ByVariable(variableID int) []model.Entity {
	var out []model.Entity
	for _, e := range t.entities {
		if !e.IsRoot() && e.VariableID == variableID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Subtree returns id and all its descendants in pre-order
func (t *Tree) Subtree(id int) ([]int, error) {
	if _, ok := t.entities[id]; !ok {
		return nil, fmt.Errorf("subtree of %d: %w", id, ErrNotFound)
	}
	var out []int
	seen := make(map[int]struct{})
	stack := []int{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, dup := seen[cur]; dup {
			return nil, fmt.Errorf("subtree of %d: revisited %d: %w", id, cur, ErrCycleDetected)
		}
		seen[cur] = struct{}{}
		out = append(out, cur)

		bucket := t.childrenOf[cur]
		for i := len(bucket) - 1; i >= 0; i-- {
			stack = append(stack, bucket[i])
		}
	}
	return out, nil
}

// FindValue looks up a non-root entity of a variable by exact value
func (t *Tree) FindValue(variableID int, value string) (model.Entity, bool) {
	for _, e := range t.ByVariable(variableID) {
		if e.Value == value {
			return e, true
		}
	}
	return model.Entity{}, false
}

// Resolve returns the existing entity for value, or a new unsaved entity
// parented to the variable root that the store will persist on save.
func (t *Tree) Resolve(variableID int, value string, color model.Color) model.Entity {
	if e, ok := t.FindValue(variableID, value); ok {
		return e
	}
	return model.Entity{
		ID:         model.UnsavedID,
		VariableID: variableID,
		Value:      value,
		Color:      color,
		ParentID:   model.RootID(variableID),
		InDatabase: false,
	}
}
