// Package transform maps content to index XML.
//
// An IndexConfig records which template applies to a (content type,
// mime type, config id) triple. A Transformer runs a template against
// fetched content and returns XML in the schema read by package parser.
package transform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Aman-CERP/amanidx/internal/content"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// TemplateRef names a template known to a Transformer.
type TemplateRef string

// Key is the exact triple a template is registered under.
type Key struct {
	ContentType content.ContentType
	MimeType    string
	ConfigID    string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ContentType, k.MimeType, k.ConfigID)
}

// Transformer produces index XML for content using the referenced template.
type Transformer interface {
	Transform(ctx context.Context, ref TemplateRef, c *content.Content, params map[string]string) ([]byte, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, ref TemplateRef, c *content.Content, params map[string]string) ([]byte, error)

// Transform calls f.
func (f TransformerFunc) Transform(ctx context.Context, ref TemplateRef, c *content.Content, params map[string]string) ([]byte, error) {
	return f(ctx, ref, c, params)
}

// IndexConfig maps content to templates for one family of indexes.
// Templates are registered while the config is built and only read afterwards.
type IndexConfig struct {
	name string

	mu        sync.RWMutex
	templates map[Key]TemplateRef
}

// NewIndexConfig returns an empty config.
func NewIndexConfig(name string) *IndexConfig {
	return &IndexConfig{name: name, templates: make(map[Key]TemplateRef)}
}

// Name returns the config name.
func (c *IndexConfig) Name() string { return c.name }

// AddTemplates registers ref for the exact triple, replacing any earlier one.
func (c *IndexConfig) AddTemplates(ct content.ContentType, mimeType, configID string, ref TemplateRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[Key{ContentType: ct, MimeType: mimeType, ConfigID: configID}] = ref
}

// Template returns the template registered for the exact triple.
func (c *IndexConfig) Template(ct content.ContentType, mimeType, configID string) (TemplateRef, error) {
	key := Key{ContentType: ct, MimeType: mimeType, ConfigID: configID}

	c.mu.RLock()
	ref, ok := c.templates[key]
	c.mu.RUnlock()

	if !ok {
		return "", amerrors.New(amerrors.ErrCodeNoTemplate, "no template registered for "+key.String(), nil).
			WithDetail("config", c.name).
			WithDetail("key", key.String())
	}
	return ref, nil
}

// TemplateFor looks up the template for fetched content.
func (c *IndexConfig) TemplateFor(ct *content.Content) (TemplateRef, error) {
	return c.Template(ct.ID.Type, ct.MimeType, ct.EffectiveConfigID())
}

// Keys returns the registered triples in a stable order.
func (c *IndexConfig) Keys() []Key {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.templates))
	for k := range c.templates {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
