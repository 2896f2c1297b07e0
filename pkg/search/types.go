// ABOUTME: Full-text search job states, results and options
// ABOUTME: Results arrive in document-scan order; SortResults orders them for display

package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nainya/annostore/pkg/model"
)

// State is the lifecycle position of a search job
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Done reports whether the state is terminal
func (s State) Done() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Result is one regex match inside a document
type Result struct {
	DocumentID int
	Title      string
	DateTime   time.Time
	Start      int    // First rune of the match
	Stop       int    // Rune after the match
	Context    string // Surrounding text
	Pattern    string
}

// Source is the slice of the store the engine reads
type Source interface {
	ActiveCoder(ctx context.Context) (model.Coder, error)
	Coders(ctx context.Context) ([]model.Coder, error)
	// ScanDocuments calls fn for each document owned by one of coderIDs,
	// one row at a time, and stops at the first error fn returns.
	ScanDocuments(ctx context.Context, coderIDs []int, fn func(model.Document) error) error
}

// Options tunes streaming and context extraction
type Options struct {
	BatchSize     int // Results per streamed batch
	BufferBatches int // Batches buffered ahead of the consumer
	ContextChars  int // Runes of context on each side of a match
}

// DefaultOptions returns the engine defaults
func DefaultOptions() Options {
	return Options{
		BatchSize:     20,
		BufferBatches: 4,
		ContextChars:  30,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.BufferBatches < 0 {
		o.BufferBatches = d.BufferBatches
	}
	if o.ContextChars < 0 {
		o.ContextChars = d.ContextChars
	}
	return o
}

// SortResults orders results by date, then document id, keeping match
// order within a document. It sorts in place.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.DateTime.Equal(b.DateTime) {
			return a.DateTime.Before(b.DateTime)
		}
		return a.DocumentID < b.DocumentID
	})
}
