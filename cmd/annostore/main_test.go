package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/annostore/pkg/model"
	"github.com/nainya/annostore/pkg/store/sqlite"
)

func seed(t *testing.T) (string, int) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cli.db")

	st, err := sqlite.Open(path, nil, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	admin, err := st.AddCoder(ctx, model.Coder{Name: "Admin", Permissions: model.PermAll})
	require.NoError(t, err)
	require.NoError(t, st.SetActiveCoder(ctx, admin))

	stType, err := st.AddStatementType(ctx, model.StatementType{
		Label:     "DNA Statement",
		Color:     model.Color{G: 200},
		Variables: []model.VariableDef{{Key: "organization", DataType: model.ShortText}},
	})
	require.NoError(t, err)
	org := stType.Variables[0].ID
	epa, err := st.AddEntity(ctx, model.Entity{VariableID: org, Value: "EPA"})
	require.NoError(t, err)

	for i, day := range []int{5, 1} {
		doc, err := st.AddDocument(ctx, model.Document{
			Title:    "Doc" + strconv.Itoa(i+1),
			Text:     "The EPA said so.",
			CoderID:  admin,
			DateTime: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		_, err = st.AddStatement(ctx, model.Statement{
			DocumentID: doc, Start: 4, Stop: 7, StatementTypeID: stType.ID, CoderID: admin,
			Values: []model.Variable{{VariableID: org, Key: "organization", DataType: model.ShortText,
				Value: model.EntityRef{Entity: model.Entity{ID: epa, Value: "EPA", InDatabase: true}}}},
		})
		require.NoError(t, err)
	}
	return path, org
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSearchCommand(t *testing.T) {
	db, _ := seed(t)

	out, err := run(t, "search", "epa", "--db", db, "--sort")
	require.NoError(t, err)
	assert.Contains(t, out, "2 results (completed)")
	assert.Less(t, bytes.Index([]byte(out), []byte("2024-01-01")), bytes.Index([]byte(out), []byte("2024-01-05")))

	_, err = run(t, "search", "(", "--db", db)
	assert.Error(t, err)
}

func TestRenderCommand(t *testing.T) {
	db, _ := seed(t)

	out, err := run(t, "render", "1", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "#00c800")
	assert.Contains(t, out, "EPA")
}

func TestStatementsCommand(t *testing.T) {
	db, _ := seed(t)

	out, err := run(t, "statements", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "organization=EPA")
	assert.Contains(t, out, "DNA Statement")

	out, err = run(t, "statements", "1", "--db", db, "--mode", "filtered", "--type", "1", "--var", "organization=^DOE$")
	require.NoError(t, err)
	assert.NotContains(t, out, "organization=EPA")

	_, err = run(t, "statements", "--db", db, "--mode", "sideways")
	assert.Error(t, err)
}

func TestEntitiesCommand(t *testing.T) {
	db, org := seed(t)

	out, err := run(t, "entities", strconv.Itoa(org), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "organization > EPA")
}

func TestRegexCommands(t *testing.T) {
	db, _ := seed(t)

	_, err := run(t, "regex", "add", "said", "--color", "#0000ff", "--db", db)
	require.NoError(t, err)

	out, err := run(t, "regex", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "said")
	assert.Contains(t, out, "#0000ff")

	_, err = run(t, "regex", "delete", "said", "--db", db)
	require.NoError(t, err)
	out, err = run(t, "regex", "list", "--db", db)
	require.NoError(t, err)
	assert.NotContains(t, out, "said")
}
