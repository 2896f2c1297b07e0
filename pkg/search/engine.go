// ABOUTME: Single-flight cancellable regex search across accessible documents
// ABOUTME: Starting a search cancels the running one; results stream in batches

package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nainya/annostore/internal/logger"
	"github.com/nainya/annostore/internal/metrics"
	"github.com/nainya/annostore/pkg/model"
	"github.com/nainya/annostore/pkg/permission"
)

// ErrEmptyPattern indicates a blank search pattern
var ErrEmptyPattern = fmt.Errorf("%w: empty search pattern", model.ErrValidation)

// Engine runs at most one search job at a time
type Engine struct {
	src     Source
	opts    Options
	log     *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	current *Job
}

// NewEngine creates a search engine; log and m may be nil
func NewEngine(src Source, opts Options, log *logger.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		src:     src,
		opts:    opts.withDefaults(),
		log:     log,
		metrics: m,
	}
}

// Start validates pattern, cancels any running job and launches a new one.
// A malformed pattern returns a validation error and starts nothing.
func (e *Engine) Start(ctx context.Context, pattern string) (*Job, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, ErrEmptyPattern
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: search pattern %q: %v", model.ErrValidation, pattern, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		e.current.Cancel()
	}

	job := newJob(ctx, pattern, e.opts.BufferBatches)
	e.current = job
	if e.metrics != nil {
		e.metrics.SearchStarted()
	}
	go e.run(job, re)

	return job, nil
}

// Current returns the most recently started job, or nil
func (e *Engine) Current() *Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// State returns the state of the current job, or StateIdle
func (e *Engine) State() State {
	if j := e.Current(); j != nil {
		return j.State()
	}
	return StateIdle
}

// Stop cancels the running job, if any
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.Cancel()
	}
}

func (e *Engine) run(job *Job, re *regexp.Regexp) {
	log := e.log.SearchLogger(job.ID)
	log.Debug("search started").Str("pattern", job.Pattern).Send()

	err := e.scan(job, re)

	state := StateCompleted
	switch {
	case job.ctx.Err() != nil:
		state, err = StateCancelled, nil
	case err != nil:
		state = StateFailed
		if !errors.Is(err, model.ErrStorage) {
			err = fmt.Errorf("%w: %v", model.ErrStorage, err)
		}
		err = fmt.Errorf("search %q: %w", job.Pattern, err)
	}

	duration := time.Since(job.StartedAt)
	job.mu.Lock()
	count := job.count
	job.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SearchFinished(state.String(), duration)
	}
	log.LogSearchJob(job.Pattern, state.String(), duration, count, err)

	job.finish(state, err)
}

func (e *Engine) scan(job *Job, re *regexp.Regexp) error {
	ctx := job.ctx

	actor, err := e.src.ActiveCoder(ctx)
	if err != nil {
		return err
	}
	coders, err := e.src.Coders(ctx)
	if err != nil {
		return err
	}
	visible := permission.VisibleCoders(actor, coders)

	return e.src.ScanDocuments(ctx, visible, func(doc model.Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !permission.CanViewDocuments(actor, doc.CoderID) {
			return nil
		}
		return e.scanDocument(job, re, doc)
	})
}

func (e *Engine) scanDocument(job *Job, re *regexp.Regexp, doc model.Document) error {
	matches := re.FindAllStringIndex(doc.Text, -1)
	if len(matches) == 0 {
		return nil
	}

	runes := []rune(doc.Text)
	offsets := model.RuneOffsets(doc.Text)
	batch := make([]Result, 0, e.opts.BatchSize)

	for _, m := range matches {
		if err := job.ctx.Err(); err != nil {
			return err
		}
		if m[0] == m[1] {
			continue
		}
		start, stop := offsets[m[0]], offsets[m[1]]
		batch = append(batch, Result{
			DocumentID: doc.ID,
			Title:      doc.Title,
			DateTime:   doc.DateTime,
			Start:      start,
			Stop:       stop,
			Context:    contextOf(runes, start, stop, e.opts.ContextChars),
			Pattern:    job.Pattern,
		})
		if len(batch) >= e.opts.BatchSize {
			if !e.deliver(job, batch) {
				return job.ctx.Err()
			}
			batch = make([]Result, 0, e.opts.BatchSize)
		}
	}

	if len(batch) > 0 && !e.deliver(job, batch) {
		return job.ctx.Err()
	}
	return nil
}

func (e *Engine) deliver(job *Job, batch []Result) bool {
	if !job.emit(batch) {
		return false
	}
	if e.metrics != nil {
		e.metrics.SearchBatch(len(batch))
	}
	return true
}

// contextOf cuts runes[max(0, start-n) : min(len-1, stop+n)]
func contextOf(runes []rune, start, stop, n int) string {
	from := max(0, start-n)
	to := min(len(runes)-1, stop+n)
	if to < from {
		return ""
	}
	return string(runes[from:to])
}
