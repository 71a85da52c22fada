package parser

import "github.com/Aman-CERP/amanidx/internal/document"

// Store attribute values
const (
	StoreYes      = "yes"
	StoreNo       = "no"
	StoreCompress = "compress"
)

// Index attribute values of the 1.0 schema
const (
	IndexNo          = "no"
	IndexNoNorms     = "no-norms"
	IndexTokenised   = "tokenised"
	IndexUnTokenised = "un-tokenised"
)

// Index attribute values added by the 2.0 schema
const (
	IndexAnalyzed           = "analyzed"
	IndexNotAnalyzed        = "not-analyzed"
	IndexAnalyzedNoNorms    = "analyzed-no-norms"
	IndexNotAnalyzedNoNorms = "not-analyzed-no-norms"
)

// indexFlags are the indexing flags implied by an index attribute value.
type indexFlags struct {
	indexed   bool
	tokenized bool
	omitNorms bool
}

var indexValues = map[string]indexFlags{
	IndexNo:          {indexed: false, tokenized: false, omitNorms: true},
	IndexNoNorms:     {indexed: true, tokenized: false, omitNorms: true},
	IndexTokenised:   {indexed: true, tokenized: true, omitNorms: false},
	"tokenized":      {indexed: true, tokenized: true, omitNorms: false},
	IndexUnTokenised: {indexed: true, tokenized: false, omitNorms: true},
	"un-tokenized":   {indexed: true, tokenized: false, omitNorms: true},

	IndexAnalyzed:           {indexed: true, tokenized: true, omitNorms: false},
	IndexNotAnalyzed:        {indexed: true, tokenized: false, omitNorms: false},
	IndexAnalyzedNoNorms:    {indexed: true, tokenized: true, omitNorms: true},
	IndexNotAnalyzedNoNorms: {indexed: true, tokenized: false, omitNorms: true},
}

// toStored maps a store attribute value to the stored flag.
func toStored(v string) (bool, bool) {
	switch v {
	case StoreYes, StoreCompress:
		return true, true
	case StoreNo:
		return false, true
	default:
		return false, false
	}
}

// toIndexFlags maps an index attribute value to its flags.
func toIndexFlags(v string) (indexFlags, bool) {
	f, ok := indexValues[v]
	return f, ok
}

// newField builds a field from validated attribute values.
func newField(name, value string, stored bool, ix indexFlags) document.Field {
	return document.Field{
		Name:      name,
		Value:     value,
		Stored:    stored,
		Indexed:   ix.indexed,
		Tokenized: ix.tokenized,
		OmitNorms: ix.omitNorms,
	}
}
