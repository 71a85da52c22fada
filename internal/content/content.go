// Package content identifies and carries units of content to be indexed.
package content

import (
	"context"
	"fmt"
)

// ContentType tags a family of content. Templates are registered per type.
type ContentType string

// Common content types.
const (
	TypeFile ContentType = "file"
	TypeURL  ContentType = "url"
)

// ID identifies a unit of content. IDs are comparable; two IDs are the same
// content exactly when all of their fields are equal.
type ID struct {
	Type     ContentType
	Key      string
	ConfigID string // selects the transformation template, may be empty
}

func (id ID) String() string {
	if id.ConfigID == "" {
		return fmt.Sprintf("%s:%s", id.Type, id.Key)
	}
	return fmt.Sprintf("%s:%s#%s", id.Type, id.Key, id.ConfigID)
}

// DeleteRule selects every document whose Field equals Value exactly.
// It identifies documents to delete, and the documents a new version replaces.
type DeleteRule struct {
	Field string
	Value string
}

// Valid reports whether the rule can select anything.
func (r *DeleteRule) Valid() bool {
	return r != nil && r.Field != "" && r.Value != ""
}

func (r *DeleteRule) String() string {
	if r == nil {
		return "<none>"
	}
	return r.Field + "=" + r.Value
}

// Content is a fetched unit of content.
type Content struct {
	ID         ID
	MimeType   string
	Source     []byte
	Deleted    bool
	DeleteRule *DeleteRule
	// ConfigID overrides ID.ConfigID when set.
	ConfigID string
}

// EffectiveConfigID returns the config id used to select a template.
func (c *Content) EffectiveConfigID() string {
	if c.ConfigID != "" {
		return c.ConfigID
	}
	return c.ID.ConfigID
}

// Fetcher retrieves content by id. A missing unit is reported either as a
// deletion (Content.Deleted) or as ErrContentNotFound.
type Fetcher interface {
	Fetch(ctx context.Context, id ID) (*Content, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id ID) (*Content, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, id ID) (*Content, error) {
	return f(ctx, id)
}
