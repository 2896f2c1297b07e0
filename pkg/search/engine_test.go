// ABOUTME: Tests for the streaming search engine
// ABOUTME: Covers matching, context clamping, batching, cancellation and failure

package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/annostore/pkg/model"
)

type fakeSource struct {
	actor    model.Coder
	coders   []model.Coder
	docs     []model.Document
	failAt   int // Fail when reaching this document index; -1 never
	endless  bool
	coderIDs []int
	coderErr error
}

func (f *fakeSource) ActiveCoder(ctx context.Context) (model.Coder, error) {
	return f.actor, nil
}

func (f *fakeSource) Coders(ctx context.Context) ([]model.Coder, error) {
	return f.coders, f.coderErr
}

func (f *fakeSource) ScanDocuments(ctx context.Context, coderIDs []int, fn func(model.Document) error) error {
	f.coderIDs = coderIDs
	allowed := make(map[int]bool)
	for _, id := range coderIDs {
		allowed[id] = true
	}
	for i, d := range f.docs {
		if i == f.failAt {
			return fmt.Errorf("%w: connection reset", model.ErrStorage)
		}
		if !allowed[d.CoderID] {
			continue
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	for i := 0; f.endless; i++ {
		if err := fn(model.Document{ID: 1000 + i, CoderID: f.actor.ID, Text: "match and match"}); err != nil {
			return err
		}
	}
	return nil
}

func newSource(docs ...model.Document) *fakeSource {
	actor := model.Coder{ID: 1, Permissions: model.PermAll}
	return &fakeSource{
		actor:  actor,
		coders: []model.Coder{actor, {ID: 2}},
		docs:   docs,
		failAt: -1,
	}
}

func startJob(t *testing.T, e *Engine, pattern string) *Job {
	t.Helper()
	job, err := e.Start(context.Background(), pattern)
	require.NoError(t, err)
	return job
}

func TestSearchSingleDocumentMatch(t *testing.T) {
	src := newSource(
		model.Document{ID: 1, Title: "Doc1", CoderID: 1, Text: "A new EPA study shows"},
		model.Document{ID: 2, Title: "Doc2", CoderID: 1, Text: "Nothing to see"},
	)
	e := NewEngine(src, DefaultOptions(), nil, nil)

	job := startJob(t, e, "EPA")
	results := Collect(job)
	state, err := job.Wait()

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
	require.Len(t, results, 1)
	assert.Equal(t, "Doc1", results[0].Title)
	assert.Equal(t, 6, results[0].Start)
	assert.Equal(t, 9, results[0].Stop)
	assert.Equal(t, "EPA", results[0].Pattern)
	assert.Equal(t, 1, job.Count())
}

func TestSearchCaseInsensitiveNonOverlapping(t *testing.T) {
	src := newSource(model.Document{ID: 1, CoderID: 1, Text: "AaAa epa"})
	e := NewEngine(src, DefaultOptions(), nil, nil)

	results := Collect(startJob(t, e, "aa"))
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Start)
	assert.Equal(t, 2, results[1].Start)

	results = Collect(startJob(t, e, "x*"))
	assert.Empty(t, results, "zero-length matches are skipped")
}

func TestContextClamping(t *testing.T) {
	text := strings.Repeat("abcdefghij", 4) // 40 runes
	runes := []rune(text)

	assert.Equal(t, text[0:34], contextOf(runes, 0, 4, 30))
	assert.Equal(t, text[5:39], contextOf(runes, 35, 40, 30))
	assert.Equal(t, text[0:39], contextOf(runes, 0, 40, 30))
	assert.Equal(t, "cdefgh", contextOf(runes, 4, 6, 2))

	src := newSource(model.Document{ID: 1, CoderID: 1, Text: "EPA" + text[3:]})
	results := Collect(startJob(t, NewEngine(src, DefaultOptions(), nil, nil), "epa"))
	require.Len(t, results, 1)
	assert.True(t, strings.HasPrefix(results[0].Context, "EPA"))
	assert.Len(t, results[0].Context, 33)
}

func TestSearchBatching(t *testing.T) {
	src := newSource(
		model.Document{ID: 1, CoderID: 1, Text: "x x x x x"},
		model.Document{ID: 2, CoderID: 1, Text: "x"},
	)
	e := NewEngine(src, Options{BatchSize: 2, BufferBatches: 0, ContextChars: 30}, nil, nil)

	job := startJob(t, e, "x")
	var sizes []int
	for batch := range job.Results() {
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{2, 2, 1, 1}, sizes)
}

func TestSearchRespectsDocumentPermissions(t *testing.T) {
	src := newSource(
		model.Document{ID: 1, Title: "mine", CoderID: 1, Text: "EPA"},
		model.Document{ID: 2, Title: "theirs", CoderID: 2, Text: "EPA"},
	)
	src.actor.Permissions = src.actor.Permissions.Without(model.PermViewOthersDocuments)
	e := NewEngine(src, DefaultOptions(), nil, nil)

	job := startJob(t, e, "EPA")
	results := Collect(job)
	_, err := job.Wait()
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "mine", results[0].Title)
	assert.Equal(t, []int{1}, src.coderIDs)
}

func TestSearchCancel(t *testing.T) {
	src := newSource()
	src.endless = true
	e := NewEngine(src, Options{BatchSize: 1, BufferBatches: 4, ContextChars: 30}, nil, nil)

	job := startJob(t, e, "match")
	_, ok := <-job.Results()
	require.True(t, ok)

	job.Cancel()

	_, ok = <-job.Results()
	assert.False(t, ok, "no batch may arrive after Cancel returns")
	state, err := job.Wait()
	assert.Equal(t, StateCancelled, state)
	assert.NoError(t, err)
	assert.Equal(t, StateCancelled, e.State())
}

func TestCancelAfterCompletionKeepsResults(t *testing.T) {
	src := newSource(model.Document{ID: 1, CoderID: 1, Text: "EPA"})
	e := NewEngine(src, DefaultOptions(), nil, nil)

	job := startJob(t, e, "EPA")
	state, _ := job.Wait()
	require.Equal(t, StateCompleted, state)

	job.Cancel()
	assert.Equal(t, StateCompleted, job.State())
	assert.Len(t, Collect(job), 1)
}

func TestSearchFailureKeepsStreamedResults(t *testing.T) {
	src := newSource(
		model.Document{ID: 1, CoderID: 1, Text: "EPA one"},
		model.Document{ID: 2, CoderID: 1, Text: "EPA two"},
		model.Document{ID: 3, CoderID: 1, Text: "EPA three"},
	)
	src.failAt = 2
	e := NewEngine(src, DefaultOptions(), nil, nil)

	job := startJob(t, e, "EPA")
	results := Collect(job)
	state, err := job.Wait()

	assert.Equal(t, StateFailed, state)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrStorage))
	assert.Len(t, results, 2)
}

func TestSearchCoderLookupFailure(t *testing.T) {
	src := newSource()
	src.coderErr = errors.New("no such table: coders")
	e := NewEngine(src, DefaultOptions(), nil, nil)

	job := startJob(t, e, "EPA")
	state, err := job.Wait()
	assert.Equal(t, StateFailed, state)
	assert.True(t, errors.Is(err, model.ErrStorage))
}

func TestStartCancelsRunningJob(t *testing.T) {
	src := newSource()
	src.endless = true
	e := NewEngine(src, Options{BatchSize: 1, BufferBatches: 1, ContextChars: 30}, nil, nil)

	first := startJob(t, e, "match")
	<-first.Results()

	src2 := newSource(model.Document{ID: 1, CoderID: 1, Text: "EPA"})
	e.src = src2
	second := startJob(t, e, "EPA")

	assert.Equal(t, StateCancelled, first.State())
	assert.Same(t, second, e.Current())
	assert.Len(t, Collect(second), 1)

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("first job still running")
	}
}

func TestStartRejectsBadPatterns(t *testing.T) {
	e := NewEngine(newSource(), DefaultOptions(), nil, nil)

	_, err := e.Start(context.Background(), "  ")
	assert.True(t, errors.Is(err, model.ErrValidation))

	_, err = e.Start(context.Background(), "(unclosed")
	assert.True(t, errors.Is(err, model.ErrValidation))

	assert.Nil(t, e.Current())
	assert.Equal(t, StateIdle, e.State())
}

func TestSortResults(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	results := []Result{
		{DocumentID: 5, DateTime: day(2), Start: 0},
		{DocumentID: 3, DateTime: day(2), Start: 9},
		{DocumentID: 3, DateTime: day(2), Start: 1},
		{DocumentID: 9, DateTime: day(1), Start: 0},
	}

	SortResults(results)

	assert.Equal(t, 9, results[0].DocumentID)
	assert.Equal(t, 3, results[1].DocumentID)
	assert.Equal(t, 9, results[1].Start)
	assert.Equal(t, 1, results[2].Start)
	assert.Equal(t, 5, results[3].DocumentID)
}
