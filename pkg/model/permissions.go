// ABOUTME: Coder permission bitset and per-coder relation overrides
// ABOUTME: Relations only narrow what the global bits allow

package model

// Permission is a bitset of global coder rights
type Permission uint32

const (
	PermAddDocuments Permission = 1 << iota
	PermEditDocuments
	PermDeleteDocuments
	PermImportDocuments
	PermAddStatements
	PermEditStatements
	PermDeleteStatements
	PermEditAttributes
	PermEditRegex
	PermEditStatementTypes
	PermEditCoders
	PermEditCoderRelations
	PermViewOthersDocuments
	PermEditOthersDocuments
	PermViewOthersStatements
	PermEditOthersStatements
)

// PermAll grants every right
const PermAll = PermEditOthersStatements<<1 - 1

var permissionNames = []struct {
	perm Permission
	name string
}{
	{PermAddDocuments, "addDocuments"},
	{PermEditDocuments, "editDocuments"},
	{PermDeleteDocuments, "deleteDocuments"},
	{PermImportDocuments, "importDocuments"},
	{PermAddStatements, "addStatements"},
	{PermEditStatements, "editStatements"},
	{PermDeleteStatements, "deleteStatements"},
	{PermEditAttributes, "editAttributes"},
	{PermEditRegex, "editRegex"},
	{PermEditStatementTypes, "editStatementTypes"},
	{PermEditCoders, "editCoders"},
	{PermEditCoderRelations, "editCoderRelations"},
	{PermViewOthersDocuments, "viewOthersDocuments"},
	{PermEditOthersDocuments, "editOthersDocuments"},
	{PermViewOthersStatements, "viewOthersStatements"},
	{PermEditOthersStatements, "editOthersStatements"},
}

// Has reports whether every bit of q is set
func (p Permission) Has(q Permission) bool {
	return p&q == q
}

// With returns p with q added
func (p Permission) With(q Permission) Permission {
	return p | q
}

// Without returns p with q removed
func (p Permission) Without(q Permission) Permission {
	return p &^ q
}

// Names lists the set bits by name, in declaration order
func (p Permission) Names() []string {
	var names []string
	for _, pn := range permissionNames {
		if p.Has(pn.perm) {
			names = append(names, pn.name)
		}
	}
	return names
}

// PermissionByName resolves a name as returned by Names
func PermissionByName(name string) (Permission, bool) {
	for _, pn := range permissionNames {
		if pn.name == name {
			return pn.perm, true
		}
	}
	return 0, false
}

// CoderRelation narrows a coder's rights over one other coder's data
type CoderRelation struct {
	ViewStatements bool
	EditStatements bool
	ViewDocuments  bool
	EditDocuments  bool
}

// FullRelation allows everything the global bits allow
var FullRelation = CoderRelation{
	ViewStatements: true,
	EditStatements: true,
	ViewDocuments:  true,
	EditDocuments:  true,
}
