// ABOUTME: Tests for permission evaluation
// ABOUTME: Covers own data, global bits and restricting relations

package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nainya/annostore/pkg/model"
)

func coder(id int, perms model.Permission) model.Coder {
	return model.Coder{ID: id, Name: "c", Permissions: perms, Relations: map[int]model.CoderRelation{}}
}

func TestOwnStatementAlwaysVisible(t *testing.T) {
	for _, perms := range []model.Permission{0, model.PermAll, model.PermEditRegex} {
		a := coder(1, perms)
		a.Relations[1] = model.CoderRelation{}
		assert.True(t, CanViewStatement(a, 1))
		assert.True(t, CanView(a, model.Statement{CoderID: 1}))
	}
}

func TestViewRequiresGlobalBit(t *testing.T) {
	a := coder(1, model.PermAll.Without(model.PermViewOthersStatements))
	assert.False(t, CanViewStatement(a, 2))

	// A permissive relation cannot grant beyond the global bit
	a.Relations[2] = model.FullRelation
	assert.False(t, CanViewStatement(a, 2))
}

func TestRelationRestricts(t *testing.T) {
	a := coder(1, model.PermAll)
	assert.True(t, CanViewStatement(a, 2), "no relation means blanket permission applies")

	a.Relations[2] = model.CoderRelation{ViewStatements: false, EditStatements: true}
	assert.False(t, CanViewStatement(a, 2))
	assert.True(t, CanViewStatement(a, 3))

	a.Relations[2] = model.CoderRelation{ViewStatements: true}
	assert.True(t, CanViewStatement(a, 2))
	assert.False(t, CanEditStatement(a, 2))
}

func TestEditRules(t *testing.T) {
	a := coder(1, model.PermEditStatements)
	assert.True(t, CanEditStatement(a, 1))
	assert.False(t, CanEditStatement(a, 2))

	a.Permissions = a.Permissions.With(model.PermEditOthersStatements)
	assert.True(t, CanEdit(a, model.Statement{CoderID: 2}))

	b := coder(1, 0)
	assert.True(t, CanEditStatement(b, 1), "own statements need no bit")
	assert.False(t, CanEditStatement(b, 2))

	c := coder(1, model.PermEditOthersStatements)
	c.Relations[2] = model.CoderRelation{EditStatements: false, ViewStatements: true}
	assert.True(t, CanEditStatement(c, 3))
	assert.False(t, CanEditStatement(c, 2))
}

func TestAddAndDelete(t *testing.T) {
	a := coder(1, model.PermAddStatements)
	assert.True(t, CanAddStatements(a))
	assert.False(t, CanDeleteStatement(a, 1))

	a.Permissions = a.Permissions.With(model.PermDeleteStatements)
	assert.True(t, CanDeleteStatement(a, 1))
	assert.False(t, CanDeleteStatement(a, 2))

	a.Permissions = a.Permissions.With(model.PermEditOthersStatements)
	assert.True(t, CanDeleteStatement(a, 2))
	a.Relations[2] = model.CoderRelation{EditStatements: false, ViewStatements: true}
	assert.False(t, CanDeleteStatement(a, 2))
}

func TestDocumentsAndVisibleCoders(t *testing.T) {
	a := coder(1, model.PermViewOthersDocuments)
	a.Relations[3] = model.CoderRelation{ViewDocuments: false}
	coders := []model.Coder{coder(1, 0), coder(2, 0), coder(3, 0)}

	assert.Equal(t, []int{1, 2}, VisibleCoders(a, coders))

	a.Permissions = 0
	assert.Equal(t, []int{1}, VisibleCoders(a, coders))
	assert.False(t, CanEditDocuments(a, 1))
	assert.False(t, CanEditRegex(a))
}
