package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/annostore/internal/metrics"
	"github.com/nainya/annostore/pkg/model"
)

type fixture struct {
	store   *Store
	admin   int
	guest   int
	docID   int
	stType  model.StatementType
	stmtID  int
	usa     int
	unused  int
	person  int
	ctx     context.Context
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	m := metrics.NewMetrics(prometheus.NewRegistry())

	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil, m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{store: s, ctx: ctx, metrics: m}

	f.admin, err = s.AddCoder(ctx, model.Coder{Name: "Admin", Color: model.Color{R: 255}, Permissions: model.PermAll})
	require.NoError(t, err)
	f.guest, err = s.AddCoder(ctx, model.Coder{
		Name:        "Guest",
		Color:       model.Color{B: 255},
		Permissions: model.PermEditStatements | model.PermViewOthersStatements,
	})
	require.NoError(t, err)
	require.NoError(t, s.SetCoderRelation(ctx, f.guest, f.admin, model.CoderRelation{ViewStatements: true}))
	require.NoError(t, s.SetActiveCoder(ctx, f.admin))

	f.stType, err = s.AddStatementType(ctx, model.StatementType{
		Label: "DNA Statement",
		Color: model.Color{G: 200},
		Variables: []model.VariableDef{
			{Key: "person", DataType: model.ShortText},
			{Key: "agreement", DataType: model.Boolean},
			{Key: "intensity", DataType: model.Integer},
			{Key: "note", DataType: model.LongText},
		},
	})
	require.NoError(t, err)
	f.person = f.stType.Variables[0].ID

	f.usa, err = s.AddEntity(ctx, model.Entity{VariableID: f.person, Value: "USA", Attributes: map[string]string{"type": "country"}})
	require.NoError(t, err)
	f.unused, err = s.AddEntity(ctx, model.Entity{VariableID: f.person, Value: "Nobody"})
	require.NoError(t, err)

	f.docID, err = s.AddDocument(ctx, model.Document{
		Title:    "Doc1",
		Text:     "The EPA said the EPA will act.",
		CoderID:  f.admin,
		DateTime: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	f.stmtID, err = s.AddStatement(ctx, model.Statement{
		DocumentID:      f.docID,
		Start:           4,
		Stop:            7,
		StatementTypeID: f.stType.ID,
		CoderID:         f.admin,
		Values: []model.Variable{
			{VariableID: f.person, Key: "person", DataType: model.ShortText,
				Value: model.EntityRef{Entity: model.Entity{ID: f.usa, Value: "USA", InDatabase: true}}},
			{VariableID: f.stType.Variables[1].ID, Key: "agreement", DataType: model.Boolean, Value: model.BoolValue(true)},
			{VariableID: f.stType.Variables[2].ID, Key: "intensity", DataType: model.Integer, Value: model.IntValue(3)},
		},
	})
	require.NoError(t, err)
	return f
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "again.db")
	s, err := Open(path, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = Open(path, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Close())
}

func TestCodersAndActiveCoder(t *testing.T) {
	f := newFixture(t)

	coders, err := f.store.Coders(f.ctx)
	require.NoError(t, err)
	require.Len(t, coders, 2)
	assert.Equal(t, "Admin", coders[0].Name)
	assert.Equal(t, model.PermAll, coders[0].Permissions)
	rel, ok := coders[1].Relation(f.admin)
	require.True(t, ok)
	assert.True(t, rel.ViewStatements)
	assert.False(t, rel.EditStatements)

	active, err := f.store.ActiveCoder(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, f.admin, active.ID)
	assert.Equal(t, model.Color{R: 255}, active.Color)

	require.NoError(t, f.store.SetActiveCoder(f.ctx, f.guest))
	active, err = f.store.ActiveCoder(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, f.guest, active.ID)
	assert.Len(t, active.Relations, 1)

	err = f.store.SetActiveCoder(f.ctx, 999)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestStatementTypesKeepVariableOrder(t *testing.T) {
	f := newFixture(t)

	types, err := f.store.StatementTypes(f.ctx)
	require.NoError(t, err)
	require.Len(t, types, 1)
	keys := make([]string, 0, len(types[0].Variables))
	for _, v := range types[0].Variables {
		keys = append(keys, v.Key)
	}
	assert.Equal(t, []string{"person", "agreement", "intensity", "note"}, keys)
	assert.Equal(t, model.Boolean, types[0].Variables[1].DataType)
}

func TestShallowStatementsAndValues(t *testing.T) {
	f := newFixture(t)

	stmts, err := f.store.ShallowStatements(f.ctx, f.docID)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, 4, stmts[0].Start)
	assert.Equal(t, 7, stmts[0].Stop)
	assert.Equal(t, model.Color{R: 255}, stmts[0].CoderColor)
	assert.Empty(t, stmts[0].Values)

	values, err := f.store.Values(f.ctx, f.stmtID)
	require.NoError(t, err)
	require.Len(t, values, 4)
	assert.Equal(t, "USA", model.FormatValue(values[0].Value))
	assert.Equal(t, model.BoolValue(true), values[1].Value)
	assert.Equal(t, model.IntValue(3), values[2].Value)
	assert.Equal(t, model.Text(""), values[3].Value, "missing data reads as the zero value")

	_, err = f.store.Values(f.ctx, 404)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestEntitiesIncludeUnused(t *testing.T) {
	f := newFixture(t)

	all, err := f.store.Entities(f.ctx, []int{f.person}, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].IsRoot())
	assert.Equal(t, "person", all[0].Value)
	assert.Equal(t, "country", all[1].Attributes["type"])
	assert.Equal(t, model.RootID(f.person), all[1].ParentID)

	used, err := f.store.Entities(f.ctx, []int{f.person}, false)
	require.NoError(t, err)
	require.Len(t, used, 2)
	assert.Equal(t, f.usa, used[1].ID)

	every, err := f.store.Entities(f.ctx, nil, true)
	require.NoError(t, err)
	assert.Len(t, every, 3+3, "three more roots for the other variables")
}

func TestEntitiesKeepAncestorsOfUsedValues(t *testing.T) {
	f := newFixture(t)

	child, err := f.store.AddEntity(f.ctx, model.Entity{VariableID: f.person, Value: "Alabama", ParentID: f.unused})
	require.NoError(t, err)
	_, err = f.store.UpdateStatement(f.ctx, f.stmtID, []model.Variable{{
		VariableID: f.person, Key: "person", DataType: model.ShortText,
		Value: model.EntityRef{Entity: model.Entity{ID: child, Value: "Alabama", InDatabase: true}},
	}}, f.admin)
	require.NoError(t, err)

	used, err := f.store.Entities(f.ctx, []int{f.person}, false)
	require.NoError(t, err)
	ids := []int{}
	for _, e := range used {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int{model.RootID(f.person), f.unused, child}, ids)
}

func TestUpdateStatementPersistsUnsavedEntity(t *testing.T) {
	f := newFixture(t)

	created, err := f.store.UpdateStatement(f.ctx, f.stmtID, []model.Variable{
		{VariableID: f.person, Key: "person", DataType: model.ShortText,
			Value: model.EntityRef{Entity: model.Entity{ID: model.UnsavedID, Value: "Canada", Color: model.Color{R: 1}}}},
		{VariableID: f.stType.Variables[3].ID, Key: "note", DataType: model.LongText, Value: model.Text("n")},
	}, f.guest)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Greater(t, created[0].ID, 0)
	assert.True(t, created[0].InDatabase)
	assert.Equal(t, model.RootID(f.person), created[0].ParentID)

	values, err := f.store.Values(f.ctx, f.stmtID)
	require.NoError(t, err)
	assert.Equal(t, "Canada", model.FormatValue(values[0].Value))
	assert.Equal(t, model.Text("n"), values[3].Value)

	stmts, err := f.store.ShallowStatements(f.ctx, f.docID)
	require.NoError(t, err)
	assert.Equal(t, f.guest, stmts[0].CoderID)

	// Saving the same value again reuses the stored entity.
	first := created[0]
	created, err = f.store.UpdateStatement(f.ctx, f.stmtID, []model.Variable{
		{VariableID: f.person, Key: "person", DataType: model.ShortText,
			Value: model.EntityRef{Entity: model.Entity{ID: model.UnsavedID, Value: "Canada"}}},
	}, f.guest)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, first.ID, created[0].ID)
}

func TestUpdateStatementResolvesStoredEntity(t *testing.T) {
	f := newFixture(t)
	teal := model.Color{G: 128, B: 128}

	child, err := f.store.AddEntity(f.ctx, model.Entity{VariableID: f.person, Value: "Alabama", Color: teal, ParentID: f.unused})
	require.NoError(t, err)

	resolved, err := f.store.UpdateStatement(f.ctx, f.stmtID, []model.Variable{
		{VariableID: f.person, Key: "person", DataType: model.ShortText,
			Value: model.EntityRef{Entity: model.Entity{ID: model.UnsavedID, Value: "Alabama"}}},
	}, f.admin)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, model.Entity{
		ID:         child,
		VariableID: f.person,
		Value:      "Alabama",
		Color:      teal,
		ParentID:   f.unused,
		InDatabase: true,
	}, resolved[0])

	values, err := f.store.Values(f.ctx, f.stmtID)
	require.NoError(t, err)
	ref := values[0].Value.(model.EntityRef)
	assert.Equal(t, child, ref.Entity.ID)
}

func TestUpdateStatementRollsBack(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.UpdateStatement(f.ctx, f.stmtID, []model.Variable{
		{VariableID: f.person, Key: "person", DataType: model.ShortText,
			Value: model.EntityRef{Entity: model.Entity{ID: model.UnsavedID, Value: "Mexico"}}},
		{VariableID: f.stType.Variables[2].ID, Key: "intensity", DataType: model.Integer, Value: model.Text("oops")},
	}, f.guest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrValidation))

	all, err := f.store.Entities(f.ctx, []int{f.person}, true)
	require.NoError(t, err)
	for _, e := range all {
		assert.NotEqual(t, "Mexico", e.Value)
	}
	stmts, err := f.store.ShallowStatements(f.ctx, f.docID)
	require.NoError(t, err)
	assert.Equal(t, f.admin, stmts[0].CoderID)

	_, err = f.store.UpdateStatement(f.ctx, 404, nil, f.admin)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestRegexes(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.store.AddRegex(f.ctx, model.Regex{Label: "epa", Color: model.Color{R: 9}}))
	require.NoError(t, f.store.AddRegex(f.ctx, model.Regex{Label: "act", Color: model.Color{G: 9}}))
	require.NoError(t, f.store.AddRegex(f.ctx, model.Regex{Label: "epa", Color: model.Color{B: 9}}))

	regexes, err := f.store.Regexes(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Regex{
		{Label: "act", Color: model.Color{G: 9}},
		{Label: "epa", Color: model.Color{B: 9}},
	}, regexes)

	require.NoError(t, f.store.DeleteRegexes(f.ctx, []string{"epa", "missing"}))
	regexes, err = f.store.Regexes(f.ctx)
	require.NoError(t, err)
	assert.Len(t, regexes, 1)
}

func TestDocumentAndScan(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.AddDocument(f.ctx, model.Document{Title: "Doc2", Text: "guest text", CoderID: f.guest})
	require.NoError(t, err)

	doc, err := f.store.Document(f.ctx, f.docID)
	require.NoError(t, err)
	assert.Equal(t, "Doc1", doc.Title)
	assert.Equal(t, 2024, doc.DateTime.Year())

	_, err = f.store.Document(f.ctx, 404)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	var titles []string
	err = f.store.ScanDocuments(f.ctx, []int{f.guest}, func(d model.Document) error {
		titles = append(titles, d.Title)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Doc2"}, titles)

	stop := errors.New("stop")
	err = f.store.ScanDocuments(f.ctx, []int{f.admin, f.guest}, func(model.Document) error { return stop })
	assert.Same(t, stop, err)

	assert.NoError(t, f.store.ScanDocuments(f.ctx, nil, func(model.Document) error { return stop }))

	ids, err := f.store.DocumentIDs(f.ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestClosedStoreReportsStorageError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	_, err := f.store.Coders(f.ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrStorage))
	assert.Greater(t, testutil.ToFloat64(f.metrics.DbOperationsTotal.WithLabelValues("coders", "error")), float64(0))
}

func TestAddStatementRejectsEmptySpan(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.AddStatement(f.ctx, model.Statement{DocumentID: f.docID, Start: 5, Stop: 5, StatementTypeID: f.stType.ID, CoderID: f.admin})
	assert.True(t, errors.Is(err, model.ErrValidation))
}
