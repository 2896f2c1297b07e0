// ABOUTME: Effective coder rights over other coders' statements and documents
// ABOUTME: Global bit first, then an explicit negative relation always wins

// Package permission evaluates what an acting coder may see and change.
// Every check reads the coder value it is given; nothing is cached, so
// permission or relation edits take effect on the next call.
package permission

import "github.com/nainya/annostore/pkg/model"

// relationField selects one flag of a coder relation
type relationField func(model.CoderRelation) bool

func viewStatements(r model.CoderRelation) bool { return r.ViewStatements }
func editStatements(r model.CoderRelation) bool { return r.EditStatements }
func viewDocuments(r model.CoderRelation) bool  { return r.ViewDocuments }
func editDocuments(r model.CoderRelation) bool  { return r.EditDocuments }

// allowed applies the three-step rule: own data is allowed; otherwise the
// global bit is required and a relation that exists must not say no.
func allowed(actor model.Coder, ownerID int, global model.Permission, field relationField) bool {
	if actor.ID == ownerID {
		return true
	}
	if !actor.Permissions.Has(global) {
		return false
	}
	if rel, ok := actor.Relation(ownerID); ok && !field(rel) {
		return false
	}
	return true
}

// CanViewStatement reports whether actor may see a statement owned by ownerID
func CanViewStatement(actor model.Coder, ownerID int) bool {
	return allowed(actor, ownerID, model.PermViewOthersStatements, viewStatements)
}

// CanView is CanViewStatement for a statement value
func CanView(actor model.Coder, s model.Statement) bool {
	return CanViewStatement(actor, s.CoderID)
}

// CanEditStatement reports whether actor may change a statement owned by ownerID.
// Own statements are always editable.
func CanEditStatement(actor model.Coder, ownerID int) bool {
	return allowed(actor, ownerID, model.PermEditOthersStatements, editStatements)
}

// CanEdit is CanEditStatement for a statement value
func CanEdit(actor model.Coder, s model.Statement) bool {
	return CanEditStatement(actor, s.CoderID)
}

// CanAddStatements checks the global bit
func CanAddStatements(actor model.Coder) bool {
	return actor.Permissions.Has(model.PermAddStatements)
}

// CanDeleteStatement needs the delete bit, plus edit rights over another coder's statement
func CanDeleteStatement(actor model.Coder, ownerID int) bool {
	if !actor.Permissions.Has(model.PermDeleteStatements) {
		return false
	}
	return allowed(actor, ownerID, model.PermEditOthersStatements, editStatements)
}

// CanViewDocuments reports whether actor may see documents owned by ownerID
func CanViewDocuments(actor model.Coder, ownerID int) bool {
	return allowed(actor, ownerID, model.PermViewOthersDocuments, viewDocuments)
}

// CanEditDocuments reports whether actor may change documents owned by ownerID
func CanEditDocuments(actor model.Coder, ownerID int) bool {
	if !actor.Permissions.Has(model.PermEditDocuments) {
		return false
	}
	return allowed(actor, ownerID, model.PermEditOthersDocuments, editDocuments)
}

// CanEditRegex checks the global bit
func CanEditRegex(actor model.Coder) bool {
	return actor.Permissions.Has(model.PermEditRegex)
}

// VisibleCoders returns the ids of coders whose documents actor may view.
// The actor is always included.
func VisibleCoders(actor model.Coder, coders []model.Coder) []int {
	ids := []int{actor.ID}
	for _, c := range coders {
		if c.ID != actor.ID && CanViewDocuments(actor, c.ID) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
