// Package parser turns index XML into documents.
//
// The accepted schema is
//
//	<documents version="1.0">
//	  <document>
//	    <field name="title" store="yes" index="tokenised">Value</field>
//	    <field name="modified" store="yes" index="un-tokenised"
//	           date-format="yyyy-MM-dd" date-resolution="day">2024-01-31</field>
//	  </document>
//	</documents>
//
// Problems confined to one field or document are warnings: the field is
// dropped or kept raw and parsing continues. Input that is not well-formed
// fails with ErrMalformedSource; well-formed input that breaks the schema
// fails with ErrInvalidSource.
package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/amanidx/internal/document"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/logging"
)

// Element names of the index XML schema
const (
	ElementDocuments = "documents"
	ElementDocument  = "document"
	ElementField     = "field"
)

// Supported schema versions. An absent version accepts every known value.
const (
	Version1 = "1.0"
	Version2 = "2.0"
)

// Warning describes a recoverable problem found while parsing.
type Warning struct {
	Document int    // 0-based position of the document element
	Field    string // field name, empty for document-level warnings
	Message  string
}

func (w Warning) String() string {
	if w.Field == "" {
		return fmt.Sprintf("document %d: %s", w.Document, w.Message)
	}
	return fmt.Sprintf("document %d, field %q: %s", w.Document, w.Field, w.Message)
}

// Result is the outcome of a successful parse.
type Result struct {
	Version   string
	Documents []*document.Document
	Warnings  []Warning
}

// Parser converts index XML into documents. It is safe for concurrent use.
type Parser struct {
	logger *slog.Logger
}

// New creates a parser that logs warnings to logger (nil discards them).
func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logging.OrDiscard(logger)}
}

// Parse returns the documents of r in source order.
func (p *Parser) Parse(r io.Reader) ([]*document.Document, error) {
	res, err := p.Process(r)
	if err != nil {
		return nil, err
	}
	return res.Documents, nil
}

// Process parses r and also reports the warnings raised on the way.
func (p *Parser) Process(r io.Reader) (*Result, error) {
	st := &state{dec: xml.NewDecoder(r), res: &Result{}}
	if err := st.run(); err != nil {
		return nil, err
	}
	for _, w := range st.res.Warnings {
		p.logger.Warn("index_xml_warning",
			slog.Int("document", w.Document),
			slog.String("field", w.Field),
			slog.String("message", w.Message))
	}
	return st.res, nil
}

// state walks the token stream of one parse.
type state struct {
	dec *xml.Decoder
	res *Result
}

func (s *state) warn(doc int, field, format string, args ...any) {
	s.res.Warnings = append(s.res.Warnings, Warning{
		Document: doc,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
	})
}

// next returns the next significant token: start or end elements and
// non-blank character data. Comments, processing instructions and
// directives are skipped.
func (s *state) next() (xml.Token, error) {
	for {
		tok, err := s.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, malformed(err)
		}
		switch t := tok.(type) {
		case xml.StartElement, xml.EndElement:
			return t, nil
		case xml.CharData:
			if strings.TrimSpace(string(t)) != "" {
				return t.Copy(), nil
			}
		}
	}
}

func (s *state) run() error {
	tok, err := s.next()
	if errors.Is(err, io.EOF) {
		return malformed(fmt.Errorf("no root element"))
	}
	if err != nil {
		return err
	}
	root, ok := tok.(xml.StartElement)
	if !ok {
		return invalid("content before root element")
	}
	if root.Name.Local != ElementDocuments {
		return invalid("root element must be <%s>, found <%s>", ElementDocuments, root.Name.Local)
	}
	s.res.Version = attr(root, "version")
	if v := s.res.Version; v != "" && v != Version1 && v != Version2 {
		return invalid("unsupported version %q", v)
	}

	for {
		tok, err := s.next()
		if errors.Is(err, io.EOF) {
			return malformed(fmt.Errorf("unexpected end of input inside <%s>", ElementDocuments))
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return s.trailer()
		case xml.StartElement:
			if t.Name.Local != ElementDocument {
				return invalid("unexpected element <%s> in <%s>", t.Name.Local, ElementDocuments)
			}
			doc, err := s.document(len(s.res.Documents))
			if err != nil {
				return err
			}
			s.res.Documents = append(s.res.Documents, doc)
		default:
			return invalid("unexpected text in <%s>", ElementDocuments)
		}
	}
}

// trailer reads past the root so errors after it are still reported.
func (s *state) trailer() error {
	for {
		tok, err := s.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, ok := tok.(xml.StartElement); ok {
			return malformed(fmt.Errorf("more than one root element"))
		}
		return invalid("unexpected content after root element")
	}
}

func (s *state) document(n int) (*document.Document, error) {
	doc := document.New()
	for {
		tok, err := s.next()
		if errors.Is(err, io.EOF) {
			return nil, malformed(fmt.Errorf("unexpected end of input inside <%s>", ElementDocument))
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if doc.Len() == 0 {
				s.warn(n, "", "document has no fields")
			}
			return doc, nil
		case xml.StartElement:
			if t.Name.Local != ElementField {
				return nil, invalid("unexpected element <%s> in <%s>", t.Name.Local, ElementDocument)
			}
			f, keep, err := s.field(n, t)
			if err != nil {
				return nil, err
			}
			if keep {
				doc.Add(f)
			}
		default:
			return nil, invalid("unexpected text in <%s>", ElementDocument)
		}
	}
}

func (s *state) field(n int, start xml.StartElement) (document.Field, bool, error) {
	name := strings.TrimSpace(attr(start, "name"))
	if name == "" {
		return document.Field{}, false, invalid("field without a name in document %d", n)
	}

	storeAttr, hasStore := lookup(start, "store")
	indexAttr, hasIndex := lookup(start, "index")
	if !hasStore || !hasIndex {
		return document.Field{}, false, invalid("field %q must have store and index attributes", name)
	}
	stored, ok := toStored(storeAttr)
	if !ok {
		return document.Field{}, false, invalid("field %q: invalid store value %q", name, storeAttr)
	}
	ix, ok := toIndexFlags(indexAttr)
	if !ok || !s.allowed(indexAttr) {
		return document.Field{}, false, invalid("field %q: invalid index value %q", name, indexAttr)
	}

	var value string
	if err := s.dec.DecodeElement(&value, &start); err != nil {
		var syn *xml.SyntaxError
		if errors.As(err, &syn) {
			return document.Field{}, false, malformed(err)
		}
		return document.Field{}, false, invalid("field %q must only contain text", name)
	}

	if format, isDate := lookup(start, "date-format"); isDate {
		value = s.date(n, name, format, attr(start, "date-resolution"), value)
	}

	f := newField(name, value, stored, ix)
	if !f.Meaningful() {
		s.warn(n, name, "field is neither stored nor indexed, dropped")
		return f, false, nil
	}
	return f, true, nil
}

// allowed reports whether an index value belongs to the document's version.
func (s *state) allowed(v string) bool {
	switch s.res.Version {
	case Version1:
		switch v {
		case IndexAnalyzed, IndexNotAnalyzed, IndexAnalyzedNoNorms, IndexNotAnalyzedNoNorms:
			return false
		}
	case Version2:
		switch v {
		case IndexNoNorms, IndexTokenised, "tokenized", IndexUnTokenised, "un-tokenized":
			return false
		}
	}
	return true
}

// date normalises a date value, keeping raw on any problem.
func (s *state) date(n int, name, format, resolution, raw string) string {
	layout, err := JavaLayout(format)
	if err != nil {
		s.warn(n, name, "ignoring date format: %v", err)
		return raw
	}
	res := DefaultResolution
	if resolution != "" {
		r, ok := ParseResolution(resolution)
		if !ok {
			s.warn(n, name, "unknown date resolution %q, using %s", resolution, DefaultResolution)
		} else {
			res = r
		}
	}
	t, err := time.Parse(layout, strings.TrimSpace(raw))
	if err != nil {
		s.warn(n, name, "value %q does not match date format %q", raw, format)
		return raw
	}
	return FormatDate(t, res)
}

func lookup(start xml.StartElement, name string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func attr(start xml.StartElement, name string) string {
	v, _ := lookup(start, name)
	return v
}

func malformed(cause error) error {
	return amerrors.New(amerrors.ErrCodeMalformedSource, "index XML is not well-formed: "+cause.Error(), cause)
}

func invalid(format string, args ...any) error {
	return amerrors.New(amerrors.ErrCodeInvalidSource, "invalid index XML: "+fmt.Sprintf(format, args...), nil)
}
