package query

import "strings"

// Substitute returns a copy of q with every occurrence of from replaced by
// to. Words of a phrase on from's field are replaced too when to stays on
// that field. Queries other than Generic and Combined are returned as is.
func Substitute(q Query, from, to Term) Query {
	switch v := q.(type) {
	case *Generic:
		terms := make([]Term, len(v.Terms))
		for i, t := range v.Terms {
			terms[i] = substituteTerm(t, from, to)
		}
		return &Generic{Terms: terms, Sort: v.Sort}
	case *Combined:
		return &Combined{A: Substitute(v.A, from, to), B: Substitute(v.B, from, to), Sort: v.Sort}
	default:
		return q
	}
}

func substituteTerm(t, from, to Term) Term {
	if t.Field != from.Field {
		return t
	}
	if t.Value == from.Value {
		return to
	}
	if !t.IsPhrase() || to.Field != from.Field {
		return t
	}
	words := strings.Fields(t.Value[1 : len(t.Value)-1])
	for i, w := range words {
		if w == from.Value {
			words[i] = to.Value
		}
	}
	return Term{Field: t.Field, Value: `"` + strings.Join(words, " ") + `"`}
}
