package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute(t *testing.T) {
	// Given: terms and phrases over two fields
	build := func(verb, city string) Query {
		return NewCombined(
			NewGeneric(nil, Term{Field: "title", Value: verb}, Term{Field: "title", Value: `"new ` + city + `"`}),
			NewGeneric(nil, Term{Field: "body", Value: verb}, Term{Field: "body", Value: `"new ` + city + `"`}, Term{Field: "body", Value: "pen"}),
			IndexOrder)
	}
	q := build("come", "york")

	// When: each word is substituted per field
	s := Substitute(q, Term{Field: "title", Value: "come"}, Term{Field: "title", Value: "came"})
	s = Substitute(s, Term{Field: "body", Value: "come"}, Term{Field: "body", Value: "came"})
	s = Substitute(s, Term{Field: "title", Value: "york"}, Term{Field: "title", Value: "orleans"})
	s = Substitute(s, Term{Field: "body", Value: "york"}, Term{Field: "body", Value: "orleans"})

	// Then
	assert.Equal(t, build("came", "orleans").String(), s.String())
	assert.Equal(t, IndexOrder, s.SortOrder())
	assert.Equal(t, build("come", "york").String(), q.String(), "the input is not modified")
}

func TestSubstitute_Terms(t *testing.T) {
	tests := []struct {
		name     string
		term     Term
		from, to Term
		want     Term
	}{
		{"other field", Term{Field: "a", Value: "x"}, Term{Field: "b", Value: "x"}, Term{Field: "b", Value: "y"}, Term{Field: "a", Value: "x"}},
		{"exact", Term{Field: "a", Value: "x"}, Term{Field: "a", Value: "x"}, Term{Field: "c", Value: "y"}, Term{Field: "c", Value: "y"}},
		{"phrase word", Term{Field: "a", Value: `"x z x"`}, Term{Field: "a", Value: "x"}, Term{Field: "a", Value: "y"}, Term{Field: "a", Value: `"y z y"`}},
		{"phrase moved field", Term{Field: "a", Value: `"x z"`}, Term{Field: "a", Value: "x"}, Term{Field: "c", Value: "y"}, Term{Field: "a", Value: `"x z"`}},
		{"no match", Term{Field: "a", Value: "w"}, Term{Field: "a", Value: "x"}, Term{Field: "a", Value: "y"}, Term{Field: "a", Value: "w"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteTerm(tt.term, tt.from, tt.to))
		})
	}
}

func TestSubstitute_MatchAllUnchanged(t *testing.T) {
	q := Substitute(NewGeneric(ByScore), Term{Field: "a", Value: "x"}, Term{Field: "a", Value: "y"})
	assert.Equal(t, "*", q.String())
}
