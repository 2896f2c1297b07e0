// ABOUTME: Annotation data model: entities, statements, coders, regexes, documents
// ABOUTME: Plain values loaded from or destined for the persistence store

package model

import "time"

// UnsavedID marks an entity typed by a coder that the store has not assigned an id yet
const UnsavedID = -1

// Entity is a named value in the taxonomy, or a variable root when ID < 0
type Entity struct {
	ID         int               // Negative for variable roots
	VariableID int               // Variable the entity belongs to
	Value      string            // Display value
	Color      Color             // Entity color
	ParentID   int               // Root or grouping entity; ignored for roots
	InDatabase bool              // Persisted by the store
	Attributes map[string]string // Custom attributes
}

// IsRoot reports whether the entity is a variable root
func (e Entity) IsRoot() bool {
	return e.ID < 0 && e.ID != UnsavedID
}

// RootID returns the root entity id of a variable. Variable ids are positive.
func RootID(variableID int) int {
	return -1 - variableID
}

// NewRoot creates the root node of a variable
func NewRoot(variableID int, key string) Entity {
	return Entity{
		ID:         RootID(variableID),
		VariableID: variableID,
		Value:      key,
		Color:      Black,
		InDatabase: true,
	}
}

// VariableDef declares one variable of a statement type
type VariableDef struct {
	ID       int
	Key      string
	DataType DataType
}

// StatementType defines the color and the ordered variables of statements
type StatementType struct {
	ID        int
	Label     string
	Color     Color
	Variables []VariableDef
}

// Variable returns the definition with the given key
func (st StatementType) Variable(key string) (VariableDef, bool) {
	for _, v := range st.Variables {
		if v.Key == key {
			return v, true
		}
	}
	return VariableDef{}, false
}

// Statement is a coder-authored annotation over a half-open rune span
type Statement struct {
	ID              int
	DocumentID      int
	Start           int // First rune, inclusive
	Stop            int // Last rune, exclusive
	StatementTypeID int
	CoderID         int
	CoderColor      Color
	Values          []Variable // Empty for shallow statements
}

// Value returns the variable with the given key
func (s Statement) Value(key string) (Variable, bool) {
	for _, v := range s.Values {
		if v.Key == key {
			return v, true
		}
	}
	return Variable{}, false
}

// Clone copies the statement including its value slice
func (s Statement) Clone() Statement {
	c := s
	c.Values = append([]Variable(nil), s.Values...)
	return c
}

// Coder is a user identity with global permissions and per-coder overrides
type Coder struct {
	ID                int
	Name              string
	Color             Color
	Permissions       Permission
	ColorByCoder      bool // Paint statements in coder color instead of type color
	PopupWidth        int
	PopupAutoComplete bool
	PopupDecoration   bool
	FontSize          int
	Relations         map[int]CoderRelation // Keyed by other coder id
}

// Relation returns the override for another coder, if one exists
func (c Coder) Relation(otherID int) (CoderRelation, bool) {
	r, ok := c.Relations[otherID]
	return r, ok
}

// Regex is a highlighting pattern; Label is the pattern itself
type Regex struct {
	Label string
	Color Color
}

// Document is a text that statements annotate
type Document struct {
	ID       int
	Title    string
	Text     string
	CoderID  int
	Author   string
	Source   string
	Section  string
	Notes    string
	Type     string
	DateTime time.Time
}
