// Package indexio owns the write and read paths of a single index.
//
// A Controller stages document changes and makes them visible atomically
// at commit. Readers book a Searcher: an immutable snapshot of the last
// commit, shared by every booking until the next commit and closed once the
// last booking is released.
package indexio

import (
	"fmt"
	"time"
)

// DefaultAnalyzer analyses tokenised fields when an Index names none.
const DefaultAnalyzer = "standard"

// analyzer for un-tokenised fields
const keywordAnalyzer = "keyword"

// Index describes a logical index. Path "" keeps the index in memory.
type Index struct {
	ID       string
	Analyzer string
	Path     string
}

func (i Index) String() string {
	if i.Path == "" {
		return i.ID + " (memory)"
	}
	return fmt.Sprintf("%s (%s)", i.ID, i.Path)
}

func (i Index) analyzer() string {
	if i.Analyzer == "" {
		return DefaultAnalyzer
	}
	return i.Analyzer
}

// Options tune commit batching.
type Options struct {
	// MaxPendingChanges triggers a commit in MaybeCommit once reached.
	MaxPendingChanges int
	// CommitInterval triggers a commit in MaybeCommit once elapsed since
	// the last commit, if anything is pending.
	CommitInterval time.Duration
}

// DefaultOptions returns the batching defaults.
func DefaultOptions() Options {
	return Options{
		MaxPendingChanges: 1000,
		CommitInterval:    5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxPendingChanges <= 0 {
		o.MaxPendingChanges = d.MaxPendingChanges
	}
	if o.CommitInterval <= 0 {
		o.CommitInterval = d.CommitInterval
	}
	return o
}

// State is the lifecycle stage of a Controller.
type State int

const (
	StateUninitialized State = iota
	StateOpen
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpen:
		return "open"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
