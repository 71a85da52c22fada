package transform

import (
	"bytes"
	"context"
	"embed"
	"encoding/xml"
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"text/template"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/amanidx/internal/content"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/logging"
)

// DefaultTemplateCacheSize is the number of compiled templates kept.
const DefaultTemplateCacheSize = 64

// Templates shipped with the binary, addressable as "builtin/<name>.tmpl".
const (
	BuiltinPassthrough TemplateRef = "builtin/passthrough.tmpl"
	BuiltinText        TemplateRef = "builtin/text.tmpl"
)

//go:embed builtin/*.tmpl
var builtinFS embed.FS

// Data is what a template executes against.
type Data struct {
	ID       content.ID
	Key      string
	MimeType string
	ConfigID string
	// Raw is the fetched source as text.
	Raw string
	// Source is the parsed element tree, nil when the source is not XML.
	Source *Node
	Params map[string]string
}

// TemplateEngine runs text/template templates read from a file system.
// Compiled templates are cached by reference. It is safe for concurrent use.
type TemplateEngine struct {
	fsys   fs.FS
	cache  *lru.Cache[TemplateRef, *template.Template]
	logger *slog.Logger
}

// NewTemplateEngine creates an engine over fsys. A nil fsys serves only the
// builtin templates; otherwise builtin templates are still found under
// "builtin/" when fsys has no such file.
func NewTemplateEngine(fsys fs.FS, cacheSize int, logger *slog.Logger) *TemplateEngine {
	if cacheSize <= 0 {
		cacheSize = DefaultTemplateCacheSize
	}
	cache, _ := lru.New[TemplateRef, *template.Template](cacheSize)
	return &TemplateEngine{
		fsys:   fsys,
		cache:  cache,
		logger: logging.OrDiscard(logger),
	}
}

// Transform executes the template ref against c with params.
func (e *TemplateEngine) Transform(ctx context.Context, ref TemplateRef, c *content.Content, params map[string]string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "no content to transform", nil)
	}

	tmpl, err := e.load(ref)
	if err != nil {
		return nil, err
	}

	data := Data{
		ID:       c.ID,
		Key:      c.ID.Key,
		MimeType: c.MimeType,
		ConfigID: c.EffectiveConfigID(),
		Raw:      string(c.Source),
		Params:   params,
	}
	if data.Params == nil {
		data.Params = map[string]string{}
	}
	if isXML(c) {
		node, err := ParseNode(c.Source)
		if err != nil {
			return nil, transformFailed(ref, c, "source is not well-formed XML", err)
		}
		data.Source = node
	}

	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return nil, transformFailed(ref, c, "template execution failed", err)
	}

	e.logger.Debug("content_transformed",
		slog.String("template", string(ref)),
		slog.String("content", c.ID.String()),
		slog.Int("bytes", out.Len()))
	return out.Bytes(), nil
}

// load returns the compiled template, compiling it on a cache miss.
func (e *TemplateEngine) load(ref TemplateRef) (*template.Template, error) {
	if tmpl, ok := e.cache.Get(ref); ok {
		return tmpl, nil
	}

	src, err := e.read(string(ref))
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeTransformFailed, "template not found: "+string(ref), err).
			WithDetail("template", string(ref))
	}
	tmpl, err := template.New(string(ref)).Funcs(funcs).Parse(string(src))
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeTransformFailed, "template does not compile: "+string(ref), err).
			WithDetail("template", string(ref))
	}

	e.cache.Add(ref, tmpl)
	e.logger.Debug("template_compiled", slog.String("template", string(ref)))
	return tmpl, nil
}

func (e *TemplateEngine) read(name string) ([]byte, error) {
	if e.fsys != nil {
		data, err := fs.ReadFile(e.fsys, name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) || !strings.HasPrefix(name, "builtin/") {
			return nil, err
		}
	}
	return fs.ReadFile(builtinFS, name)
}

// CachedTemplates returns how many compiled templates are held.
func (e *TemplateEngine) CachedTemplates() int {
	return e.cache.Len()
}

func isXML(c *content.Content) bool {
	mt := strings.ToLower(c.MimeType)
	return strings.HasSuffix(mt, "/xml") || strings.HasSuffix(mt, "+xml")
}

func transformFailed(ref TemplateRef, c *content.Content, msg string, cause error) error {
	return amerrors.New(amerrors.ErrCodeTransformFailed, msg, cause).
		WithDetail("template", string(ref)).
		WithDetail("content", c.ID.String())
}

var funcs = template.FuncMap{
	"xml":   escapeXML,
	"param": param,
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
	"join":  strings.Join,
}

// escapeXML escapes s for use as element text or an attribute value.
func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// param returns params[name], or the first fallback when it is unset.
func param(params map[string]string, name string, fallback ...string) string {
	if v, ok := params[name]; ok {
		return v
	}
	if len(fallback) > 0 {
		return fallback[0]
	}
	return ""
}
