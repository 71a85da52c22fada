package content

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/logging"
)

// FieldURI is the document field that DirFetcher rules select on.
// Templates for directory content must emit it with the content key.
const FieldURI = "uri"

// DefaultMimeType is used when the extension is unknown.
const DefaultMimeType = "application/octet-stream"

// DirFetcher serves files below a root directory. The content key is the
// slash-separated path relative to the root.
type DirFetcher struct {
	root     string
	ctype    ContentType
	configID string
	logger   *slog.Logger
}

// NewDirFetcher creates a fetcher rooted at root.
func NewDirFetcher(root string, logger *slog.Logger) (*DirFetcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "invalid content root", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeIOFailure, "content root not accessible", err).
			WithDetail("root", abs)
	}
	if !info.IsDir() {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "content root is not a directory", nil).
			WithDetail("root", abs)
	}
	return &DirFetcher{root: abs, ctype: TypeFile, logger: logging.OrDiscard(logger)}, nil
}

// Root returns the absolute root directory.
func (d *DirFetcher) Root() string { return d.root }

// WithConfigID sets the config id stamped on ids produced by IDFor and Walk.
func (d *DirFetcher) WithConfigID(configID string) *DirFetcher {
	d.configID = configID
	return d
}

// IDFor returns the content id of an absolute or root-relative path.
func (d *DirFetcher) IDFor(p string) (ID, error) {
	key, err := d.key(p)
	if err != nil {
		return ID{}, err
	}
	return ID{Type: d.ctype, Key: key, ConfigID: d.configID}, nil
}

// Fetch reads the file for id. A missing file yields deletion content so that
// its documents are removed from the index.
func (d *DirFetcher) Fetch(ctx context.Context, id ID) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := d.key(id.Key)
	if err != nil {
		return nil, err
	}

	rule := &DeleteRule{Field: FieldURI, Value: key}
	full := filepath.Join(d.root, filepath.FromSlash(key))

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		d.logger.Debug("content_missing_treated_as_deleted",
			slog.String("key", key))
		return &Content{ID: id, Deleted: true, DeleteRule: rule}, nil
	}
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeContentUnavailable, "failed to read content", err).
			WithDetail("path", full)
	}

	return &Content{
		ID:         id,
		MimeType:   MimeTypeOf(key),
		Source:     data,
		DeleteRule: rule,
	}, nil
}

// Walk calls fn with the id of every regular file below the root, skipping
// hidden files and directories.
func (d *DirFetcher) Walk(ctx context.Context, fn func(ID) error) error {
	return filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			d.logger.Warn("content_walk_error", slog.String("path", p), slog.String("error", err.Error()))
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p != d.root && strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		id, err := d.IDFor(p)
		if err != nil {
			return err
		}
		return fn(id)
	})
}

// key validates p and returns its slash-separated root-relative form.
func (d *DirFetcher) key(p string) (string, error) {
	rel := p
	if filepath.IsAbs(p) {
		r, err := filepath.Rel(d.root, p)
		if err != nil {
			return "", amerrors.New(amerrors.ErrCodeInvalidInput, "path outside content root", err)
		}
		rel = r
	}
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return "", amerrors.New(amerrors.ErrCodeInvalidInput, "path outside content root", nil).
			WithDetail("path", p)
	}
	return rel, nil
}

// fixed so template mappings do not depend on the host's mime.types
var knownTypes = map[string]string{
	".xml":   "text/xml",
	".xhtml": "application/xhtml+xml",
	".html":  "text/html",
	".htm":   "text/html",
	".txt":   "text/plain",
	".json":  "application/json",
}

// MimeTypeOf guesses the media type from the extension, without parameters.
func MimeTypeOf(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := knownTypes[ext]; ok {
		return t
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return DefaultMimeType
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}
