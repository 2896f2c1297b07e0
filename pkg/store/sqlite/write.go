// ABOUTME: Write paths of the SQLite store: statement updates, regexes and seeding
// ABOUTME: Multi-row writes run in one transaction and roll back on any failure

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

// withTx runs fn in a transaction, committing on success
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// UpdateStatement replaces the values and owner of a statement atomically
func (s *Store) UpdateStatement(ctx context.Context, statementID int, values []model.Variable, coderID int) (resolved []model.Entity, err error) {
	start := time.Now()
	defer func() { s.observe("update_statement", start, len(values), err) }()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		resolved = resolved[:0]
		res, err := tx.ExecContext(ctx, `UPDATE statements SET coder_id = ? WHERE id = ?`, coderID, statementID)
		if err != nil {
			return storageErr("update statement", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("statement %d: %w", statementID, model.ErrNotFound)
		}
		r, err := writeValues(ctx, tx, statementID, values)
		resolved = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// writeValues upserts statement data. Unsaved entity refs are resolved
// against stored entities first, inserting the ones that are missing.
func writeValues(ctx context.Context, tx *sql.Tx, statementID int, values []model.Variable) ([]model.Entity, error) {
	var resolved []model.Entity
	for _, v := range values {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		var err error
		switch x := v.Value.(type) {
		case model.EntityRef:
			e := x.Entity
			if e.ID == model.UnsavedID || !e.InDatabase {
				e, err = ensureEntity(ctx, tx, v.VariableID, e)
				if err != nil {
					return nil, err
				}
				resolved = append(resolved, e)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO data_short_text (statement_id, variable_id, entity_id) VALUES (?, ?, ?)
				ON CONFLICT (statement_id, variable_id) DO UPDATE SET entity_id = excluded.entity_id`,
				statementID, v.VariableID, e.ID)
		case model.Text:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO data_long_text (statement_id, variable_id, value) VALUES (?, ?, ?)
				ON CONFLICT (statement_id, variable_id) DO UPDATE SET value = excluded.value`,
				statementID, v.VariableID, string(x))
		case model.IntValue:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO data_integer (statement_id, variable_id, value) VALUES (?, ?, ?)
				ON CONFLICT (statement_id, variable_id) DO UPDATE SET value = excluded.value`,
				statementID, v.VariableID, int(x))
		case model.BoolValue:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO data_boolean (statement_id, variable_id, value) VALUES (?, ?, ?)
				ON CONFLICT (statement_id, variable_id) DO UPDATE SET value = excluded.value`,
				statementID, v.VariableID, boolInt(bool(x)))
		}
		if err != nil {
			return nil, storageErr("write "+v.DataType.String()+" value", err)
		}
	}
	return resolved, nil
}

// ensureEntity returns the stored entity with e's value, inserting it when absent
func ensureEntity(ctx context.Context, tx *sql.Tx, variableID int, e model.Entity) (model.Entity, error) {
	e.VariableID = variableID
	var (
		stored model.Entity
		color  string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, value, color, parent_id FROM entities WHERE variable_id = ? AND value = ?`,
		variableID, e.Value).Scan(&stored.ID, &stored.Value, &color, &stored.ParentID)
	if err == nil {
		stored.VariableID = variableID
		stored.Color = parseColor(color)
		stored.InDatabase = true
		return stored, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return e, storageErr("select entity", err)
	}

	if e.ParentID == 0 || e.ParentID == model.UnsavedID {
		e.ParentID = model.RootID(variableID)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO entities (variable_id, value, color, parent_id) VALUES (?, ?, ?, ?)`,
		variableID, e.Value, e.Color.Hex(), e.ParentID)
	if err != nil {
		return e, storageErr("insert entity", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return e, storageErr("insert entity", err)
	}
	e.ID = int(newID)
	e.InDatabase = true
	return e, nil
}

// AddRegex inserts or recolors a highlight pattern
func (s *Store) AddRegex(ctx context.Context, r model.Regex) (err error) {
	start := time.Now()
	defer func() { s.observe("add_regex", start, 1, err) }()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO regexes (label, color) VALUES (?, ?)
		ON CONFLICT (label) DO UPDATE SET color = excluded.color`, r.Label, r.Color.Hex())
	if err != nil {
		return storageErr("insert regex", err)
	}
	return nil
}

// DeleteRegexes removes patterns by label; unknown labels are ignored
func (s *Store) DeleteRegexes(ctx context.Context, labels []string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete_regexes", start, len(labels), err) }()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, label := range labels {
			if _, err := tx.ExecContext(ctx, `DELETE FROM regexes WHERE label = ?`, label); err != nil {
				return storageErr("delete regex", err)
			}
		}
		return nil
	})
}

// insertID runs an INSERT and returns the row id
func insertID(ctx context.Context, q queryer, query string, args ...any) (int, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

// nullableID maps zero to NULL so SQLite assigns the row id
func nullableID(id int) any {
	if id <= 0 {
		return nil
	}
	return id
}

// AddCoder inserts a coder; a zero ID lets the database assign one
func (s *Store) AddCoder(ctx context.Context, c model.Coder) (id int, err error) {
	start := time.Now()
	defer func() { s.observe("add_coder", start, 1, err) }()

	id, err = insertID(ctx, s.db,
		`INSERT INTO coders (id, name, color, permissions, color_by_coder, popup_width,
		popup_autocomplete, popup_decoration, font_size) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableID(c.ID), c.Name, c.Color.Hex(), uint32(c.Permissions), boolInt(c.ColorByCoder),
		c.PopupWidth, boolInt(c.PopupAutoComplete), boolInt(c.PopupDecoration), c.FontSize)
	if err != nil {
		return 0, storageErr("insert coder", err)
	}
	for other, rel := range c.Relations {
		if err := s.SetCoderRelation(ctx, id, other, rel); err != nil {
			return id, err
		}
	}
	return id, nil
}

// SetCoderRelation stores what coderID may do with otherCoderID's data
func (s *Store) SetCoderRelation(ctx context.Context, coderID, otherCoderID int, r model.CoderRelation) (err error) {
	start := time.Now()
	defer func() { s.observe("set_coder_relation", start, 1, err) }()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO coder_relations (coder_id, other_coder_id, view_statements, edit_statements, view_documents, edit_documents)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (coder_id, other_coder_id) DO UPDATE SET
			view_statements = excluded.view_statements,
			edit_statements = excluded.edit_statements,
			view_documents = excluded.view_documents,
			edit_documents = excluded.edit_documents`,
		coderID, otherCoderID, boolInt(r.ViewStatements), boolInt(r.EditStatements),
		boolInt(r.ViewDocuments), boolInt(r.EditDocuments))
	if err != nil {
		return storageErr("upsert coder relation", err)
	}
	return nil
}

// SetActiveCoder selects the coder subsequent reads act as
func (s *Store) SetActiveCoder(ctx context.Context, coderID int) (err error) {
	start := time.Now()
	defer func() { s.observe("set_active_coder", start, 1, err) }()

	if _, err = s.coder(ctx, coderID); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, activeCoderKey, strconv.Itoa(coderID))
	if err != nil {
		return storageErr("set active coder", err)
	}
	return nil
}

// AddDocument inserts a document; a zero ID lets the database assign one
func (s *Store) AddDocument(ctx context.Context, d model.Document) (id int, err error) {
	start := time.Now()
	defer func() { s.observe("add_document", start, 1, err) }()

	id, err = insertID(ctx, s.db,
		`INSERT INTO documents (id, title, text, coder_id, author, source, section, notes, type, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableID(d.ID), d.Title, d.Text, d.CoderID, d.Author, d.Source, d.Section, d.Notes, d.Type, d.DateTime.Unix())
	if err != nil {
		return 0, storageErr("insert document", err)
	}
	return id, nil
}

// AddStatementType inserts a type and its variables, returning assigned ids
func (s *Store) AddStatementType(ctx context.Context, st model.StatementType) (out model.StatementType, err error) {
	start := time.Now()
	defer func() { s.observe("add_statement_type", start, len(st.Variables), err) }()

	out = st
	out.Variables = append([]model.VariableDef(nil), st.Variables...)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := insertID(ctx, tx, `INSERT INTO statement_types (id, label, color) VALUES (?, ?, ?)`,
			nullableID(st.ID), st.Label, st.Color.Hex())
		if err != nil {
			return storageErr("insert statement type", err)
		}
		out.ID = id
		for i, v := range out.Variables {
			vid, err := insertID(ctx, tx,
				`INSERT INTO variables (id, statement_type_id, variable, data_type, position) VALUES (?, ?, ?, ?, ?)`,
				nullableID(v.ID), id, v.Key, v.DataType.String(), i)
			if err != nil {
				return storageErr("insert variable", err)
			}
			out.Variables[i].ID = vid
		}
		return nil
	})
	if err != nil {
		return model.StatementType{}, err
	}
	return out, nil
}

// AddStatement inserts a statement with its values in one transaction
func (s *Store) AddStatement(ctx context.Context, st model.Statement) (id int, err error) {
	start := time.Now()
	defer func() { s.observe("add_statement", start, 1, err) }()

	if st.Stop <= st.Start {
		return 0, fmt.Errorf("%w: statement span [%d, %d) is empty", model.ErrValidation, st.Start, st.Stop)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertID(ctx, tx,
			`INSERT INTO statements (id, statement_type_id, document_id, start, stop, coder_id) VALUES (?, ?, ?, ?, ?, ?)`,
			nullableID(st.ID), st.StatementTypeID, st.DocumentID, st.Start, st.Stop, st.CoderID)
		if err != nil {
			return storageErr("insert statement", err)
		}
		_, err = writeValues(ctx, tx, id, st.Values)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AddEntity inserts a taxonomy value with its attributes.
// A ParentID of zero parents the entity to its variable root.
func (s *Store) AddEntity(ctx context.Context, e model.Entity) (id int, err error) {
	start := time.Now()
	defer func() { s.observe("add_entity", start, 1, err) }()

	if e.IsRoot() {
		return 0, fmt.Errorf("%w: roots are derived from variables", model.ErrValidation)
	}
	if e.ParentID == 0 {
		e.ParentID = model.RootID(e.VariableID)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertID(ctx, tx,
			`INSERT INTO entities (id, variable_id, value, color, parent_id) VALUES (?, ?, ?, ?, ?)`,
			nullableID(e.ID), e.VariableID, e.Value, e.Color.Hex(), e.ParentID)
		if err != nil {
			return storageErr("insert entity", err)
		}
		for k, v := range e.Attributes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO attribute_values (entity_id, attribute, value) VALUES (?, ?, ?)`, id, k, v); err != nil {
				return storageErr("insert attribute", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
