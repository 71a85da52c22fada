// Package query describes searches and the result sets they produce.
//
// A Generic query ANDs a list of field terms; a Combined query ORs two
// queries. Both carry a sort. Results are bound to the searcher snapshot
// they were computed on and must be terminated to release it.
package query

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// Sort specs in bleve sort-string form.
var (
	// ByScore orders by relevance, best first.
	ByScore = []string{"-_score"}
	// IndexOrder orders by insertion into the index.
	IndexOrder = []string{"_id"}
)

// Query is a search that can run on an index snapshot.
type Query interface {
	// Bleve builds the engine query.
	Bleve() (bquery.Query, error)
	// SortOrder returns the sort, ByScore when none was set.
	SortOrder() []string
	String() string
}

// Term is a field condition. A value wrapped in double quotes is a phrase,
// split into terms on whitespace; anything else is matched as one exact term.
type Term struct {
	Field string
	Value string
}

// IsPhrase reports whether the value is a quoted phrase.
func (t Term) IsPhrase() bool {
	return len(t.Value) >= 2 && strings.HasPrefix(t.Value, `"`) && strings.HasSuffix(t.Value, `"`)
}

// Bleve returns a term query, or a phrase query for quoted values.
func (t Term) Bleve() (bquery.Query, error) {
	if !IsValidFieldName(t.Field) {
		return nil, invalid("term has no field")
	}
	if t.IsPhrase() {
		words := strings.Fields(t.Value[1 : len(t.Value)-1])
		if len(words) == 0 {
			return nil, invalid("empty phrase for field " + t.Field)
		}
		return bleve.NewPhraseQuery(words, t.Field), nil
	}
	if t.Value == "" {
		return nil, invalid("empty value for field " + t.Field)
	}
	q := bleve.NewTermQuery(t.Value)
	q.SetField(t.Field)
	return q, nil
}

func (t Term) String() string {
	return t.Field + ":" + t.Value
}

// Generic matches documents satisfying every term. With no terms it
// matches all documents.
type Generic struct {
	Terms []Term
	Sort  []string
}

// NewGeneric returns an AND query over terms with the given sort.
func NewGeneric(sort []string, terms ...Term) *Generic {
	return &Generic{Terms: terms, Sort: sort}
}

// Bleve implements Query.
func (g *Generic) Bleve() (bquery.Query, error) {
	if len(g.Terms) == 0 {
		return bleve.NewMatchAllQuery(), nil
	}
	if len(g.Terms) == 1 {
		return g.Terms[0].Bleve()
	}
	parts := make([]bquery.Query, 0, len(g.Terms))
	for _, t := range g.Terms {
		q, err := t.Bleve()
		if err != nil {
			return nil, err
		}
		parts = append(parts, q)
	}
	return bleve.NewConjunctionQuery(parts...), nil
}

// SortOrder implements Query.
func (g *Generic) SortOrder() []string { return sortOrDefault(g.Sort) }

func (g *Generic) String() string {
	if len(g.Terms) == 0 {
		return "*"
	}
	parts := make([]string, len(g.Terms))
	for i, t := range g.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " AND ")
}

// Combined matches documents matching either of two queries. Only its own
// sort applies; the sorts of the parts are ignored.
type Combined struct {
	A, B Query
	Sort []string
}

// NewCombined returns the OR of a and b.
func NewCombined(a, b Query, sort []string) *Combined {
	return &Combined{A: a, B: b, Sort: sort}
}

// Bleve implements Query.
func (c *Combined) Bleve() (bquery.Query, error) {
	if c.A == nil || c.B == nil {
		return nil, invalid("combined query needs two parts")
	}
	a, err := c.A.Bleve()
	if err != nil {
		return nil, err
	}
	b, err := c.B.Bleve()
	if err != nil {
		return nil, err
	}
	return bleve.NewDisjunctionQuery(a, b), nil
}

// SortOrder implements Query.
func (c *Combined) SortOrder() []string { return sortOrDefault(c.Sort) }

func (c *Combined) String() string {
	return fmt.Sprintf("(%v) OR (%v)", c.A, c.B)
}

func sortOrDefault(s []string) []string {
	if len(s) == 0 {
		return ByScore
	}
	return s
}

// sortOrder parses a sort spec for the engine.
func sortOrder(spec []string) search.SortOrder {
	return search.ParseSortOrderStrings(sortOrDefault(spec))
}

// IsValidFieldName reports whether name can be used as a field.
func IsValidFieldName(name string) bool {
	return strings.TrimSpace(name) != "" && !strings.HasPrefix(name, "_")
}

// ToValues splits text on whitespace, keeping double-quoted phrases
// together with their quotes. An unterminated quote is not a phrase.
func ToValues(text string) []string {
	var values []string
	rest := strings.TrimSpace(text)
	for rest != "" {
		if rest[0] == '"' {
			if end := strings.IndexByte(rest[1:], '"'); end >= 0 {
				values = append(values, rest[:end+2])
				rest = strings.TrimSpace(rest[end+2:])
				continue
			}
		}
		next := strings.IndexFunc(rest, isSpace)
		if next < 0 {
			values = append(values, rest)
			break
		}
		values = append(values, rest[:next])
		rest = strings.TrimSpace(rest[next:])
	}
	return values
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// ParseTerm reads "field:value". Everything after the first colon is the value.
func ParseTerm(s string) (Term, error) {
	field, value, ok := strings.Cut(s, ":")
	if !ok || !IsValidFieldName(field) || value == "" {
		return Term{}, invalid(fmt.Sprintf("expected field:value, got %q", s))
	}
	return Term{Field: field, Value: value}, nil
}

func invalid(msg string) error {
	return amerrors.New(amerrors.ErrCodeInvalidQuery, msg, nil)
}
