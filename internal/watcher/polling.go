package watcher

import (
	"io/fs"
	"path/filepath"
	"time"
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// poller detects changes by comparing directory scans.
type poller struct {
	root     string
	patterns []string
	state    map[string]fileSnapshot
}

// newPoller takes the baseline scan of root.
func newPoller(root string, patterns []string) *poller {
	p := &poller{root: root, patterns: patterns}
	p.state = p.scan()
	return p
}

func (p *poller) scan() map[string]fileSnapshot {
	files := make(map[string]fileSnapshot)
	_ = filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil || rel == "." {
			return nil
		}
		if ignored(rel, p.patterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return files
}

// poll rescans and returns what changed since the previous scan.
func (p *poller) poll() []FileEvent {
	now := time.Now()
	current := p.scan()

	var events []FileEvent
	for rel, snap := range current {
		prev, ok := p.state[rel]
		switch {
		case !ok:
			events = append(events, FileEvent{Path: rel, Operation: OpCreate, IsDir: snap.isDir, Timestamp: now})
		case !snap.isDir && (prev.modTime != snap.modTime || prev.size != snap.size):
			events = append(events, FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel, snap := range p.state {
		if _, ok := current[rel]; !ok {
			events = append(events, FileEvent{Path: rel, Operation: OpDelete, IsDir: snap.isDir, Timestamp: now})
		}
	}
	p.state = current
	return events
}
