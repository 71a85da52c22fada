package watcher

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Operation is the kind of change seen on a path.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	// OpRename reports the old name of a renamed file; the new name
	// arrives as OpCreate.
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to one path, relative to the watched root.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a DirWatcher.
type Options struct {
	// DebounceWindow is how long events for a path are coalesced.
	DebounceWindow time.Duration
	// PollInterval is the scan period when polling.
	PollInterval time.Duration
	// EventBufferSize is the capacity of the batch channel.
	EventBufferSize int
	// IgnorePatterns are path.Match patterns tried against the base name
	// and the slash-separated relative path.
	IgnorePatterns []string
	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}

// ignored reports whether a root-relative path is skipped. Hidden entries
// are always skipped, matching what the directory fetcher walks.
func ignored(rel string, patterns []string) bool {
	if rel == "" || rel == "." {
		return true
	}
	slashed := filepath.ToSlash(rel)
	for _, part := range strings.Split(slashed, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	base := path.Base(slashed)
	for _, p := range patterns {
		if ok, _ := path.Match(p, base); ok {
			return true
		}
		if ok, _ := path.Match(p, slashed); ok {
			return true
		}
	}
	return false
}
