package db

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/warydiaz/json-ingestion-platform/internal/query"
)

// where is a rendered SurrealQL condition list with its bound variables.
// Every value reaches the database as a variable; only validated field path
// segments are spliced into the statement text.
type where struct {
	conds []string
	vars  map[string]any
}

func (w *where) add(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) bind(name string, value any) string {
	w.vars[name] = value
	return "$" + name
}

// String renders "WHERE a AND b", or "" when there are no conditions.
func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

// renderFilter compiles a filter into SurrealQL conditions on ingested_record.
// Names are rendered in sorted order so equal filters render identically.
func renderFilter(f query.CompiledFilter) (*where, error) {
	w := &where{vars: map[string]any{}}

	for i, name := range slices.Sorted(maps.Keys(f.Identity)) {
		field, err := identityField(name)
		if err != nil {
			return nil, err
		}
		w.add(fmt.Sprintf("%s = %s", field, w.bind(fmt.Sprintf("i%d", i), f.Identity[name])))
	}

	for i, path := range slices.Sorted(maps.Keys(f.Attributes)) {
		field, err := payloadField(path)
		if err != nil {
			return nil, err
		}
		cond, err := renderPredicate(w, fmt.Sprintf("a%d", i), field, f.Attributes[path])
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", path, err)
		}
		w.add(cond)
	}

	return w, nil
}

func renderPredicate(w *where, name, field string, pred query.Predicate) (string, error) {
	switch pred.Kind {
	case query.Exact:
		if pred.Value == nil {
			return fmt.Sprintf("(%s = NONE OR %s = NULL)", field, field), nil
		}
		return fmt.Sprintf("%s = %s", field, w.bind(name, pred.Value)), nil

	case query.PartialText:
		needle := w.bind(name, strings.ToLower(pred.Text))
		return fmt.Sprintf("(type::is::string(%s) AND string::contains(string::lowercase(%s), %s))",
			field, field, needle), nil

	case query.Range:
		parts := []string{fmt.Sprintf("type::is::number(%s)", field)}
		bounds := []struct {
			op  string
			key string
			val *float64
		}{
			{">", "gt", pred.Bounds.GT},
			{">=", "gte", pred.Bounds.GTE},
			{"<", "lt", pred.Bounds.LT},
			{"<=", "lte", pred.Bounds.LTE},
		}
		for _, b := range bounds {
			if b.val != nil {
				parts = append(parts, fmt.Sprintf("%s %s %s", field, b.op, w.bind(name+"_"+b.key, *b.val)))
			}
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil

	default:
		return "", fmt.Errorf("unsupported predicate kind %s", pred.Kind)
	}
}

// identityField maps an identity filter name to a record field. The two
// standard identity names are top-level fields; any other configured name is
// looked up inside the payload.
func identityField(name string) (string, error) {
	switch name {
	case query.FieldSource:
		return "source", nil
	case query.FieldDatasetID:
		return "datasetId", nil
	default:
		return payloadField(name)
	}
}

// payloadField renders a dotted attribute path as a quoted payload field.
// The path is validated again here: this is the last point before the text
// becomes part of a statement.
func payloadField(path string) (string, error) {
	if err := query.ValidateFieldPath(path); err != nil {
		return "", err
	}
	segments := query.Segments(path)
	quoted := make([]string, len(segments))
	for i, s := range segments {
		quoted[i] = "`" + s + "`"
	}
	return "payload." + strings.Join(quoted, "."), nil
}
