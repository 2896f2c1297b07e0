// ABOUTME: Persistence collaborator consumed by the annotation core
// ABOUTME: Implementations wrap their failures in model.ErrStorage

package store

import (
	"context"

	"github.com/nainya/annostore/pkg/model"
)

// Store is the persistence boundary. Reads return fresh data on every call;
// nothing is cached on this side of the interface.
type Store interface {
	// Entities returns the taxonomy of the given variables, roots included.
	// With includeUnused false only entities referenced by statement data are returned.
	Entities(ctx context.Context, variableIDs []int, includeUnused bool) ([]model.Entity, error)

	// ShallowStatements returns the statements of a document without values, ordered by id.
	ShallowStatements(ctx context.Context, documentID int) ([]model.Statement, error)

	// Values returns the variables of a statement in statement type order.
	Values(ctx context.Context, statementID int) ([]model.Variable, error)

	Regexes(ctx context.Context) ([]model.Regex, error)
	AddRegex(ctx context.Context, r model.Regex) error
	DeleteRegexes(ctx context.Context, labels []string) error

	Coders(ctx context.Context) ([]model.Coder, error)
	ActiveCoder(ctx context.Context) (model.Coder, error)
	StatementTypes(ctx context.Context) ([]model.StatementType, error)

	// UpdateStatement replaces the values and owner of a statement in one
	// transaction. Every unsaved entity value is resolved against the stored
	// taxonomy and inserted when missing; the resolved entities are returned
	// in value order, whether they were inserted or already stored.
	UpdateStatement(ctx context.Context, statementID int, values []model.Variable, coderID int) ([]model.Entity, error)

	Document(ctx context.Context, id int) (model.Document, error)

	// DocumentIDs returns every document id in ascending order.
	DocumentIDs(ctx context.Context) ([]int, error)

	// ScanDocuments calls fn for each document owned by one of coderIDs,
	// one row at a time, and stops at the first error fn returns.
	ScanDocuments(ctx context.Context, coderIDs []int, fn func(model.Document) error) error

	Close() error
}
