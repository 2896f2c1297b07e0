// ABOUTME: Session context tying the store, taxonomy, search engine and editor together
// ABOUTME: Created on open, refreshed on demand and torn down on close

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nainya/annostore/internal/config"
	"github.com/nainya/annostore/internal/logger"
	"github.com/nainya/annostore/internal/metrics"
	"github.com/nainya/annostore/pkg/editor"
	"github.com/nainya/annostore/pkg/entity"
	"github.com/nainya/annostore/pkg/filter"
	"github.com/nainya/annostore/pkg/model"
	"github.com/nainya/annostore/pkg/overlay"
	"github.com/nainya/annostore/pkg/search"
	"github.com/nainya/annostore/pkg/store"
	"github.com/nainya/annostore/pkg/store/sqlite"
)

// Options configures a session
type Options struct {
	Search search.Options

	// IncludeUnusedEntities loads taxonomy values no statement refers to
	IncludeUnusedEntities bool
}

// Session holds the state one acting coder works with
type Session struct {
	store   store.Store
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics

	renderer *overlay.Renderer
	engine   *search.Engine
	editor   *editor.Editor

	mu    sync.RWMutex
	coder model.Coder
	types []model.StatementType
	tree  *entity.Tree

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// ErrClosed is returned by Ready after Close
var ErrClosed = errors.New("session closed")

// Open opens the configured SQLite database and starts a session on it
func Open(ctx context.Context, cfg config.Config, log *logger.Logger, m *metrics.Metrics) (*Session, error) {
	st, err := sqlite.Open(cfg.Database.Path, log, m)
	if err != nil {
		return nil, err
	}
	if cfg.Database.CoderID > 0 {
		if err := st.SetActiveCoder(ctx, cfg.Database.CoderID); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	opts := Options{
		Search: search.Options{
			BatchSize:     cfg.Search.BatchSize,
			BufferBatches: cfg.Search.BufferBatches,
			ContextChars:  cfg.Search.ContextChars,
		},
		IncludeUnusedEntities: true,
	}
	s, err := New(ctx, st, opts, log, m)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	log.LogSessionOpen(cfg.Database.Path, s.Coder().ID)
	return s, nil
}

// New starts a session on an open store. The session owns st and closes it.
func New(ctx context.Context, st store.Store, opts Options, log *logger.Logger, m *metrics.Metrics) (*Session, error) {
	s := &Session{
		store:   st,
		opts:    opts,
		log:     log,
		metrics: m,
	}
	s.renderer = overlay.NewRenderer(st, log, m)
	s.engine = search.NewEngine(st, opts.Search, log, m)
	s.editor = editor.New(st, lockedTree{s}, log)

	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh reloads the active coder, statement types and the taxonomy
func (s *Session) Refresh(ctx context.Context) error {
	var (
		coder    model.Coder
		types    []model.StatementType
		entities []model.Entity
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		coder, err = s.store.ActiveCoder(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		types, err = s.store.StatementTypes(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		entities, err = s.store.Entities(gctx, nil, s.opts.IncludeUnusedEntities)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	tree := entity.NewTree()
	if err := tree.Load(entities); err != nil {
		return fmt.Errorf("load taxonomy: %w", err)
	}

	s.mu.Lock()
	s.coder = coder
	s.types = types
	s.tree = tree
	s.mu.Unlock()

	s.metrics.SetEntities(tree.Len())
	s.log.Debug("session refreshed").
		Int("coder_id", coder.ID).
		Int("statement_types", len(types)).
		Int("entities", tree.Len()).
		Send()
	return nil
}

// Coder returns the acting coder as of the last refresh. Permission checks
// go through CurrentCoder instead.
func (s *Session) Coder() model.Coder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coder
}

// CurrentCoder reads the acting coder with its permissions and relations
// from the store, so rights changed since the last refresh apply at once.
func (s *Session) CurrentCoder(ctx context.Context) (model.Coder, error) {
	coder, err := s.store.ActiveCoder(ctx)
	if err != nil {
		return model.Coder{}, err
	}
	s.mu.Lock()
	s.coder = coder
	s.mu.Unlock()
	return coder, nil
}

// StatementTypes returns the statement types as of the last refresh
func (s *Session) StatementTypes() []model.StatementType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.StatementType(nil), s.types...)
}

// StatementType looks up a statement type by id
func (s *Session) StatementType(id int) (model.StatementType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.types {
		if st.ID == id {
			return st, true
		}
	}
	return model.StatementType{}, false
}

// Tree returns the loaded taxonomy. Callers must not mutate it.
func (s *Session) Tree() *entity.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree
}

// Entities returns the root of a variable followed by its values in pre-order
func (s *Session) Entities(variableID int) ([]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, err := s.tree.Subtree(model.RootID(variableID))
	if err != nil {
		return nil, err
	}
	out := make([]model.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.tree.Get(id); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// EntityPath renders the taxonomy path of an entity
func (s *Session) EntityPath(id int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.PathString(id)
}

// Resolve returns the taxonomy entity for value, or an unsaved one
func (s *Session) Resolve(variableID int, value string, color model.Color) model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Resolve(variableID, value, color)
}

// Statements returns the statements of a document with their values
func (s *Session) Statements(ctx context.Context, documentID int) ([]model.Statement, error) {
	rows, err := s.store.ShallowStatements(ctx, documentID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].Values, err = s.store.Values(ctx, rows[i].ID); err != nil {
			return nil, err
		}
	}
	s.metrics.SetStatements(len(rows))
	return rows, nil
}

// AllStatements returns the statements of every document, by document then id
func (s *Session) AllStatements(ctx context.Context) ([]model.Statement, error) {
	ids, err := s.store.DocumentIDs(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Statement
	for _, id := range ids {
		rows, err := s.Statements(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	s.metrics.SetStatements(len(out))
	return out, nil
}

// Regexes returns the stored highlight patterns
func (s *Session) Regexes(ctx context.Context) ([]model.Regex, error) {
	return s.store.Regexes(ctx)
}

// Document returns one document with its text
func (s *Session) Document(ctx context.Context, id int) (model.Document, error) {
	return s.store.Document(ctx, id)
}

// Filter compiles criteria for the acting coder's current rights
func (s *Session) Filter(ctx context.Context, c filter.Criteria) (*filter.Predicate, error) {
	actor, err := s.CurrentCoder(ctx)
	if err != nil {
		return nil, err
	}
	return filter.New(actor, c)
}

// Overlay computes the styled runs of a document
func (s *Session) Overlay(ctx context.Context, documentID int) ([]overlay.Run, error) {
	return s.renderer.Compute(ctx, documentID)
}

// Search starts a search, cancelling the one in progress
func (s *Session) Search(ctx context.Context, pattern string) (*search.Job, error) {
	return s.engine.Start(ctx, pattern)
}

// SearchState reports the state of the latest search
func (s *Session) SearchState() search.State {
	return s.engine.State()
}

// Editor returns the statement and regex editor
func (s *Session) Editor() *editor.Editor {
	return s.editor
}

// Save edits a statement as the acting coder
func (s *Session) Save(ctx context.Context, st *model.Statement, values []model.Variable, coderID int, simulate bool) (bool, error) {
	actor, err := s.CurrentCoder(ctx)
	if err != nil {
		return false, err
	}
	return s.editor.Save(ctx, actor, st, values, coderID, simulate)
}

// AddRegex stores a highlight pattern as the acting coder
func (s *Session) AddRegex(ctx context.Context, r model.Regex) error {
	actor, err := s.CurrentCoder(ctx)
	if err != nil {
		return err
	}
	return s.editor.AddRegex(ctx, actor, r)
}

// DeleteRegexes removes highlight patterns as the acting coder
func (s *Session) DeleteRegexes(ctx context.Context, labels []string) error {
	actor, err := s.CurrentCoder(ctx)
	if err != nil {
		return err
	}
	return s.editor.DeleteRegexes(ctx, actor, labels)
}

// Close cancels any running search and closes the store
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.engine.Stop()
		s.closeErr = s.store.Close()
		s.log.LogSessionClose()
	})
	return s.closeErr
}

// Ready reports whether the session can serve requests
func (s *Session) Ready() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// lockedTree serializes editor writes into the session taxonomy
type lockedTree struct {
	s *Session
}

func (l lockedTree) Get(id int) (model.Entity, bool) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return l.s.tree.Get(id)
}

func (l lockedTree) AddEntity(e model.Entity) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if err := l.s.tree.AddEntity(e); err != nil {
		return err
	}
	l.s.metrics.SetEntities(l.s.tree.Len())
	return nil
}
