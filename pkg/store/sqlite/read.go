// ABOUTME: Read queries of the SQLite store
// ABOUTME: Every call goes to the database; nothing is cached

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nainya/annostore/pkg/model"
)

// Entities returns the roots and values of the given variables. An empty
// variableIDs selects every variable. With includeUnused false, values
// not referenced by statement data are dropped unless they are the
// ancestor of a referenced value.
func (s *Store) Entities(ctx context.Context, variableIDs []int, includeUnused bool) (out []model.Entity, err error) {
	start := time.Now()
	defer func() { s.observe("entities", start, len(out), err) }()

	where := ""
	var args []any
	if len(variableIDs) > 0 {
		marks, a := inClause(variableIDs)
		where = " WHERE id IN (" + marks + ")"
		args = a
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, variable FROM variables`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, storageErr("select variables", err)
	}
	var ids []int
	for rows.Next() {
		var id int
		var key string
		if err := rows.Scan(&id, &key); err != nil {
			_ = rows.Close()
			return nil, storageErr("scan variable", err)
		}
		ids = append(ids, id)
		out = append(out, model.NewRoot(id, key))
	}
	if err := closeRows(rows); err != nil {
		return nil, storageErr("select variables", err)
	}
	if len(ids) == 0 {
		return out, nil
	}

	marks, idArgs := inClause(ids)
	rows, err = s.db.QueryContext(ctx,
		`SELECT id, variable_id, value, color, parent_id FROM entities WHERE variable_id IN (`+marks+`) ORDER BY id`,
		idArgs...)
	if err != nil {
		return nil, storageErr("select entities", err)
	}
	var values []model.Entity
	for rows.Next() {
		var e model.Entity
		var color string
		if err := rows.Scan(&e.ID, &e.VariableID, &e.Value, &color, &e.ParentID); err != nil {
			_ = rows.Close()
			return nil, storageErr("scan entity", err)
		}
		e.Color = parseColor(color)
		e.InDatabase = true
		values = append(values, e)
	}
	if err := closeRows(rows); err != nil {
		return nil, storageErr("select entities", err)
	}

	if !includeUnused {
		used, err := s.usedEntities(ctx, marks, idArgs)
		if err != nil {
			return nil, err
		}
		values = keepWithAncestors(values, used)
	}

	attrs, err := s.attributes(ctx, marks, idArgs)
	if err != nil {
		return nil, err
	}
	for i := range values {
		values[i].Attributes = attrs[values[i].ID]
	}

	return append(out, values...), nil
}

func (s *Store) usedEntities(ctx context.Context, marks string, args []any) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT entity_id FROM data_short_text WHERE variable_id IN (`+marks+`)`, args...)
	if err != nil {
		return nil, storageErr("select used entities", err)
	}
	used := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, storageErr("scan used entity", err)
		}
		used[id] = true
	}
	if err := closeRows(rows); err != nil {
		return nil, storageErr("select used entities", err)
	}
	return used, nil
}

// keepWithAncestors filters values to the used ones plus their parent chains
func keepWithAncestors(values []model.Entity, used map[int]bool) []model.Entity {
	byID := make(map[int]model.Entity, len(values))
	for _, e := range values {
		byID[e.ID] = e
	}
	keep := make(map[int]bool, len(used))
	for id := range used {
		for cur, ok := byID[id]; ok && !keep[cur.ID]; cur, ok = byID[cur.ParentID] {
			keep[cur.ID] = true
		}
	}
	out := values[:0]
	for _, e := range values {
		if keep[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) attributes(ctx context.Context, marks string, args []any) (map[int]map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.entity_id, a.attribute, a.value FROM attribute_values a
		JOIN entities e ON e.id = a.entity_id
		WHERE e.variable_id IN (`+marks+`)`, args...)
	if err != nil {
		return nil, storageErr("select attributes", err)
	}
	out := make(map[int]map[string]string)
	for rows.Next() {
		var id int
		var key, value string
		if err := rows.Scan(&id, &key, &value); err != nil {
			_ = rows.Close()
			return nil, storageErr("scan attribute", err)
		}
		if out[id] == nil {
			out[id] = make(map[string]string)
		}
		out[id][key] = value
	}
	if err := closeRows(rows); err != nil {
		return nil, storageErr("select attributes", err)
	}
	return out, nil
}

// ShallowStatements returns the statements of a document ordered by id
func (s *Store) ShallowStatements(ctx context.Context, documentID int) (out []model.Statement, err error) {
	start := time.Now()
	defer func() { s.observe("shallow_statements", start, len(out), err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.document_id, s.start, s.stop, s.statement_type_id, s.coder_id, c.color
		FROM statements s JOIN coders c ON c.id = s.coder_id
		WHERE s.document_id = ? ORDER BY s.id`, documentID)
	if err != nil {
		return nil, storageErr("select statements", err)
	}
	for rows.Next() {
		var st model.Statement
		var color string
		if err := rows.Scan(&st.ID, &st.DocumentID, &st.Start, &st.Stop, &st.StatementTypeID, &st.CoderID, &color); err != nil {
			_ = rows.Close()
			return nil, storageErr("scan statement", err)
		}
		st.CoderColor = parseColor(color)
		out = append(out, st)
	}
	if err := closeRows(rows); err != nil {
		return nil, storageErr("select statements", err)
	}
	return out, nil
}

// Values returns the variables of a statement in statement type order.
// Variables without stored data carry the zero value of their type.
func (s *Store) Values(ctx context.Context, statementID int) (out []model.Variable, err error) {
	start := time.Now()
	defer func() { s.observe("values", start, len(out), err) }()
	return s.values(ctx, s.db, statementID)
}

func (s *Store) values(ctx context.Context, q queryer, statementID int) ([]model.Variable, error) {
	var typeID int
	err := q.QueryRowContext(ctx, `SELECT statement_type_id FROM statements WHERE id = ?`, statementID).Scan(&typeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("statement %d: %w", statementID, model.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("select statement", err)
	}

	defs, err := variableDefs(ctx, q, typeID)
	if err != nil {
		return nil, err
	}

	out := make([]model.Variable, 0, len(defs))
	for _, def := range defs {
		v, err := readValue(ctx, q, statementID, def)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Variable{
			VariableID: def.ID,
			Key:        def.Key,
			DataType:   def.DataType,
			Value:      v,
		})
	}
	return out, nil
}

func variableDefs(ctx context.Context, q queryer, typeID int) ([]model.VariableDef, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, variable, data_type FROM variables WHERE statement_type_id = ? ORDER BY position, id`, typeID)
	if err != nil {
		return nil, storageErr("select variables", err)
	}
	var defs []model.VariableDef
	for rows.Next() {
		var def model.VariableDef
		var dt string
		if err := rows.Scan(&def.ID, &def.Key, &dt); err != nil {
			_ = rows.Close()
			return nil, storageErr("scan variable", err)
		}
		if def.DataType, err = model.ParseDataType(dt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("%w: variable %d: %w", model.ErrDataIntegrity, def.ID, err)
		}
		defs = append(defs, def)
	}
	if err := closeRows(rows); err != nil {
		return nil, storageErr("select variables", err)
	}
	return defs, nil
}

func readValue(ctx context.Context, q queryer, statementID int, def model.VariableDef) (model.Value, error) {
	var err error
	switch def.DataType {
	case model.ShortText:
		var e model.Entity
		var color string
		err = q.QueryRowContext(ctx,
			`SELECT e.id, e.variable_id, e.value, e.color, e.parent_id
			FROM data_short_text d JOIN entities e ON e.id = d.entity_id
			WHERE d.statement_id = ? AND d.variable_id = ?`, statementID, def.ID).
			Scan(&e.ID, &e.VariableID, &e.Value, &color, &e.ParentID)
		if err == nil {
			e.Color = parseColor(color)
			e.InDatabase = true
			return model.EntityRef{Entity: e}, nil
		}
	case model.LongText:
		var v string
		err = q.QueryRowContext(ctx,
			`SELECT value FROM data_long_text WHERE statement_id = ? AND variable_id = ?`, statementID, def.ID).Scan(&v)
		if err == nil {
			return model.Text(v), nil
		}
	case model.Integer:
		var v int
		err = q.QueryRowContext(ctx,
			`SELECT value FROM data_integer WHERE statement_id = ? AND variable_id = ?`, statementID, def.ID).Scan(&v)
		if err == nil {
			return model.IntValue(v), nil
		}
	case model.Boolean:
		var v int
		err = q.QueryRowContext(ctx,
			`SELECT value FROM data_boolean WHERE statement_id = ? AND variable_id = ?`, statementID, def.ID).Scan(&v)
		if err == nil {
			return model.BoolValue(v != 0), nil
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		zero := model.Zero(def.DataType)
		if ref, ok := zero.(model.EntityRef); ok {
			ref.Entity.VariableID = def.ID
			ref.Entity.ParentID = model.RootID(def.ID)
			zero = ref
		}
		return zero, nil
	}
	return nil, storageErr("select "+def.DataType.String()+" value", err)
}

// Regexes returns the highlight patterns ordered by label
func (s *Store) Regexes(ctx context.Context) (out []model.Regex, err error) {
	start := time.Now()
	defer func() { s.observe("regexes", start, len(out), err) }()

	rows, err := s.db.QueryContext(ctx, `SELECT label, color FROM regexes ORDER BY label`)
	if err != nil {
		return nil, storageErr("select regexes", err)
	}
	for rows.Next() {
		var r model.Regex
		var color string
		if err := rows.Scan(&r.Label, &color); err != nil {
			_ = rows.Close()
			return nil, storageErr("scan regex", err)
		}
		r.Color = parseColor(color)
		out = append(out, r)
	}
	if err := closeRows(rows); err != nil {
		return nil, storageErr("select regexes", err)
	}
	return out, nil
}

const coderColumns = `id, name, color, permissions, color_by_coder, popup_width,
	popup_autocomplete, popup_decoration, font_size`

func scanCoder(row interface{ Scan(...any) error }) (model.Coder, error) {
	var c model.Coder
	var color string
	var perms uint32
	var byCoder, autoComplete, decoration int
	if err := row.Scan(&c.ID, &c.Name, &color, &perms, &byCoder, &c.PopupWidth,
		&autoComplete, &decoration, &c.FontSize); err != nil {
		return c, err
	}
	c.Color = parseColor(color)
	c.Permissions = model.Permission(perms)
	c.ColorByCoder = byCoder != 0
	c.PopupAutoComplete = autoComplete != 0
	c.PopupDecoration = decoration != 0
	return c, nil
}

// Coders returns every coder with its relations, ordered by id
func (s *Store) Coders(ctx context.Context) (out []model.Coder, err error) {
	start := time.Now()
	defer func() { s.observe("coders", start, len(out), err) }()

	rows, err := s.db.QueryContext(ctx, `SELECT `+coderColumns+` FROM coders ORDER BY id`)
	if err != nil {
		return nil, storageErr("select coders", err)
	}
	for rows.Next() {
		c, err := scanCoder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, storageErr("scan coder", err)
		}
		out = append(out, c)
	}
	if err := closeRows(rows); err != nil {
		return nil, storageErr("select coders", err)
	}

	relations, err := s.relations(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Relations = relations[out[i].ID]
	}
	return out, nil
}

// relations loads coder relations keyed by coder then other coder.
// A positive coderID restricts the query to that coder.
func (s *Store) relations(ctx context.Context, coderID int) (map[int]map[int]model.CoderRelation, error) {
	query := `SELECT coder_id, other_coder_id, view_statements, edit_statements, view_documents, edit_documents
		FROM coder_relations`
	var args []any
	if coderID > 0 {
		query += ` WHERE coder_id = ?`
		args = append(args, coderID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("select coder relations", err)
	}
	out := make(map[int]map[int]model.CoderRelation)
	for rows.Next() {
		var id, other, vs, es, vd, ed int
		if err := rows.Scan(&id, &other, &vs, &es, &vd, &ed); err != nil {
			_ = rows.Close()
			return nil, storageErr("scan coder relation", err)
		}
		if out[id] == nil {
			out[id] = make(map[int]model.CoderRelation)
		}
		out[id][other] = model.CoderRelation{
			ViewStatements: vs != 0,
			EditStatements: es != 0,
			ViewDocuments:  vd != 0,
			EditDocuments:  ed != 0,
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, storageErr("select coder relations", err)
	}
	return out, nil
}

// ActiveCoder returns the coder the session acts as
func (s *Store) ActiveCoder(ctx context.Context) (c model.Coder, err error) {
	start := time.Now()
	defer func() { s.observe("active_coder", start, 1, err) }()

	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, activeCoderKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("active coder: %w", model.ErrNotFound)
	}
	if err != nil {
		return c, storageErr("select active coder", err)
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return c, fmt.Errorf("%w: active coder setting %q", model.ErrDataIntegrity, raw)
	}
	return s.coder(ctx, id)
}

func (s *Store) coder(ctx context.Context, id int) (model.Coder, error) {
	c, err := scanCoder(s.db.QueryRowContext(ctx, `SELECT `+coderColumns+` FROM coders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("coder %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return c, storageErr("select coder", err)
	}
	relations, err := s.relations(ctx, id)
	if err != nil {
		return c, err
	}
	c.Relations = relations[id]
	return c, nil
}

// StatementTypes returns every statement type with ordered variables
func (s *Store) StatementTypes(ctx context.Context) (out []model.StatementType, err error) {
	start := time.Now()
	defer func() { s.observe("statement_types", start, len(out), err) }()

	rows, err := s.db.QueryContext(ctx, `SELECT id, label, color FROM statement_types ORDER BY id`)
	if err != nil {
		return nil, storageErr("select statement types", err)
	}
	for rows.Next() {
		var st model.StatementType
		var color string
		if err := rows.Scan(&st.ID, &st.Label, &color); err != nil {
			_ = rows.Close()
			return nil, storageErr("scan statement type", err)
		}
		st.Color = parseColor(color)
		out = append(out, st)
	}
	if err := closeRows(rows); err != nil {
		return nil, storageErr("select statement types", err)
	}

	for i := range out {
		if out[i].Variables, err = variableDefs(ctx, s.db, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const documentColumns = `id, title, text, coder_id, author, source, section, notes, type, date`

func scanDocument(row interface{ Scan(...any) error }) (model.Document, error) {
	var d model.Document
	var date int64
	if err := row.Scan(&d.ID, &d.Title, &d.Text, &d.CoderID, &d.Author, &d.Source,
		&d.Section, &d.Notes, &d.Type, &date); err != nil {
		return d, err
	}
	d.DateTime = time.Unix(date, 0).UTC()
	return d, nil
}

// Document returns one document with its full text
func (s *Store) Document(ctx context.Context, id int) (d model.Document, err error) {
	start := time.Now()
	defer func() { s.observe("document", start, 1, err) }()

	d, err = scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("document %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return d, storageErr("select document", err)
	}
	return d, nil
}

// ScanDocuments streams the documents of coderIDs ordered by id.
// The error returned by fn is passed through unwrapped.
func (s *Store) ScanDocuments(ctx context.Context, coderIDs []int, fn func(model.Document) error) (err error) {
	start := time.Now()
	n := 0
	defer func() { s.observe("scan_documents", start, n, err) }()

	if len(coderIDs) == 0 {
		return nil
	}

	marks, args := inClause(coderIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE coder_id IN (`+marks+`) ORDER BY id`, args...)
	if err != nil {
		return storageErr("select documents", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return storageErr("scan document", err)
		}
		n++
		if err := fn(d); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("select documents", err)
	}
	return nil
}

// DocumentIDs returns every document id in ascending order
func (s *Store) DocumentIDs(ctx context.Context) (out []int, err error) {
	start := time.Now()
	defer func() { s.observe("document_ids", start, len(out), err) }()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, storageErr("select document ids", err)
	}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, storageErr("scan document id", err)
		}
		out = append(out, id)
	}
	if err := closeRows(rows); err != nil {
		return nil, storageErr("select document ids", err)
	}
	return out, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}

// parseColor reads a stored color; malformed values fall back to black
func parseColor(s string) model.Color {
	c, err := model.ParseHex(s)
	if err != nil {
		return model.Black
	}
	return c
}
