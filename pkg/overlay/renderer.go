// ABOUTME: Store-backed overlay computation for one document
// ABOUTME: Loads text, statements, regexes, types and the acting coder fresh per call

package overlay

import (
	"context"
	"fmt"
	"time"

	"github.com/nainya/annostore/internal/logger"
	"github.com/nainya/annostore/internal/metrics"
	"github.com/nainya/annostore/pkg/model"
)

// Source is the slice of the store the renderer reads
type Source interface {
	Document(ctx context.Context, id int) (model.Document, error)
	ShallowStatements(ctx context.Context, documentID int) ([]model.Statement, error)
	Regexes(ctx context.Context) ([]model.Regex, error)
	StatementTypes(ctx context.Context) ([]model.StatementType, error)
	ActiveCoder(ctx context.Context) (model.Coder, error)
}

// Renderer computes overlays for documents in the store
type Renderer struct {
	src     Source
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewRenderer creates a renderer; m may be nil
func NewRenderer(src Source, log *logger.Logger, m *metrics.Metrics) *Renderer {
	return &Renderer{src: src, log: log, metrics: m}
}

// Compute returns the styled runs of a document.
// Invalid stored regexes are logged and skipped.
func (r *Renderer) Compute(ctx context.Context, documentID int) ([]Run, error) {
	start := time.Now()

	doc, err := r.src.Document(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("overlay document %d: %w", documentID, err)
	}
	statements, err := r.src.ShallowStatements(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("overlay document %d: %w", documentID, err)
	}
	regexes, err := r.src.Regexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("overlay document %d: %w", documentID, err)
	}
	types, err := r.src.StatementTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("overlay document %d: %w", documentID, err)
	}
	actor, err := r.src.ActiveCoder(ctx)
	if err != nil {
		return nil, fmt.Errorf("overlay document %d: %w", documentID, err)
	}

	highlights, err := CompileHighlights(regexes)
	if err != nil {
		r.log.Warn("skipping invalid highlight regexes").
			Int("document_id", documentID).
			Err(err).
			Send()
	}

	byID := make(map[int]model.StatementType, len(types))
	for _, st := range types {
		byID[st.ID] = st
	}

	runs := Compute(doc.Text, statements, byID, highlights, actor)

	if r.metrics != nil {
		r.metrics.ObserveOverlay(time.Since(start))
	}
	r.log.Debug("overlay computed").
		Int("document_id", documentID).
		Int("statements", len(statements)).
		Int("runs", len(runs)).
		Send()

	return runs, nil
}
