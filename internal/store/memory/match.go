package memory

import (
	"regexp"

	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/query"
	"github.com/warydiaz/json-ingestion-platform/internal/transform"
)

// matcher evaluates a compiled filter against records held in memory.
// PartialText patterns are compiled once per query.
type matcher struct {
	filter   query.CompiledFilter
	patterns map[string]*regexp.Regexp
}

func newMatcher(filter query.CompiledFilter) *matcher {
	m := &matcher{
		filter:   filter,
		patterns: make(map[string]*regexp.Regexp),
	}
	for path, pred := range filter.Attributes {
		if pred.Kind == query.PartialText {
			m.patterns[path] = pred.Regexp()
		}
	}
	return m
}

func (m *matcher) match(rec *models.IngestedRecord) bool {
	for name, want := range m.filter.Identity {
		if !identityEquals(rec, name, want) {
			return false
		}
	}
	for path, pred := range m.filter.Attributes {
		got, present := transform.Lookup(rec.Payload, path)
		if !m.matchPredicate(path, pred, got, present) {
			return false
		}
	}
	return true
}

func (m *matcher) matchPredicate(path string, pred query.Predicate, got any, present bool) bool {
	switch pred.Kind {
	case query.Exact:
		if pred.Value == nil {
			// A null filter matches both explicit nulls and missing fields.
			return !present || got == nil
		}
		return present && scalarEquals(got, pred.Value)
	case query.PartialText:
		s, ok := got.(string)
		return ok && m.patterns[path].MatchString(s)
	case query.Range:
		n, ok := got.(float64)
		if !ok {
			return false
		}
		b := pred.Bounds
		return (b.GT == nil || n > *b.GT) &&
			(b.GTE == nil || n >= *b.GTE) &&
			(b.LT == nil || n < *b.LT) &&
			(b.LTE == nil || n <= *b.LTE)
	default:
		return false
	}
}

func identityEquals(rec *models.IngestedRecord, name string, want any) bool {
	var got string
	switch name {
	case query.FieldSource:
		got = rec.Source
	case query.FieldDatasetID:
		got = rec.DatasetID
	default:
		v, ok := transform.Lookup(rec.Payload, name)
		return ok && scalarEquals(v, want)
	}
	s, ok := want.(string)
	return ok && s == got
}

func scalarEquals(got, want any) bool {
	switch w := want.(type) {
	case float64:
		g, ok := got.(float64)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	case string:
		g, ok := got.(string)
		return ok && g == w
	default:
		return false
	}
}
