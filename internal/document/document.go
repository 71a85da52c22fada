// Package document holds the parsed, engine-neutral form of an index document.
package document

// Field is a single named value with explicit storage and indexing flags.
type Field struct {
	Name      string
	Value     string
	Stored    bool
	Indexed   bool
	Tokenized bool
	OmitNorms bool
}

// Meaningful reports whether the field is stored or indexed.
// A field that is neither has no effect on the index.
func (f Field) Meaningful() bool {
	return f.Stored || f.Indexed
}

// Document is an ordered list of fields. Names may repeat.
type Document struct {
	Fields []Field
}

// New returns a document holding fields in the given order.
func New(fields ...Field) *Document {
	return &Document{Fields: fields}
}

// Add appends a field.
func (d *Document) Add(f Field) {
	d.Fields = append(d.Fields, f)
}

// Values returns every value of the named field, in document order.
func (d *Document) Values(name string) []string {
	var out []string
	for _, f := range d.Fields {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

// Get returns the first value of the named field.
func (d *Document) Get(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Len returns the number of fields.
func (d *Document) Len() int {
	return len(d.Fields)
}

// Keyword returns a stored, indexed, un-tokenised field, as used for keys.
func Keyword(name, value string) Field {
	return Field{Name: name, Value: value, Stored: true, Indexed: true, OmitNorms: true}
}

// Text returns a stored, tokenised field.
func Text(name, value string) Field {
	return Field{Name: name, Value: value, Stored: true, Indexed: true, Tokenized: true}
}
