package query

import (
	"maps"
	"regexp"
	"slices"
	"strings"
)

// Params is a flat map of request parameter names to raw values.
// A nil value means the parameter was not supplied.
type Params map[string]any

// Reserved pagination parameter names. They never become filters.
const (
	ParamLimit  = "limit"
	ParamCursor = "cursor"
)

// Default identity fields: exact-match filters on record metadata rather than payload.
const (
	FieldSource    = "source"
	FieldDatasetID = "datasetId"
)

// DefaultIdentityFields is the identity field set used by the read API.
var DefaultIdentityFields = []string{FieldSource, FieldDatasetID}

// PredicateKind tags the variant held by a Predicate.
type PredicateKind int

const (
	// Exact matches a non-string scalar (number, boolean or null).
	Exact PredicateKind = iota + 1
	// PartialText is a case-insensitive literal substring match.
	PartialText
	// Range bounds a numeric attribute.
	Range
)

func (k PredicateKind) String() string {
	switch k {
	case Exact:
		return "exact"
	case PartialText:
		return "partial_text"
	case Range:
		return "range"
	default:
		return "unknown"
	}
}

// Bounds holds independently settable numeric range limits.
type Bounds struct {
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

// Predicate is a single attribute filter.
type Predicate struct {
	Kind PredicateKind
	// Value is set for Exact.
	Value any
	// Pattern is set for PartialText: the input with regex metacharacters escaped.
	Pattern string
	// Text is the unescaped PartialText input, for stores that match substrings natively.
	Text string
	// Bounds is set for Range.
	Bounds Bounds
}

// Regexp compiles a PartialText pattern for case-insensitive matching.
func (p Predicate) Regexp() *regexp.Regexp {
	return regexp.MustCompile(CaseInsensitive(p.Pattern))
}

// CaseInsensitive prefixes an escaped pattern with the case-insensitive flag.
func CaseInsensitive(pattern string) string {
	return "(?i)" + pattern
}

// CompiledFilter is the typed result of Compile.
type CompiledFilter struct {
	// Identity maps identity field names to exact values, copied verbatim.
	Identity map[string]any
	// Attributes maps validated payload paths to predicates.
	Attributes map[string]Predicate
}

// Empty reports whether the filter has no predicates at all.
func (f CompiledFilter) Empty() bool {
	return len(f.Identity) == 0 && len(f.Attributes) == 0
}

type rangeSuffix struct {
	suffix string
	set    func(b *Bounds, v float64)
}

// rangeSuffixes maps attribute name suffixes to range bounds:
// _min → gte, _max → lte, _gt → gt, _lt → lt.
var rangeSuffixes = []rangeSuffix{
	{"_min", func(b *Bounds, v float64) { b.GTE = &v }},
	{"_max", func(b *Bounds, v float64) { b.LTE = &v }},
	{"_gt", func(b *Bounds, v float64) { b.GT = &v }},
	{"_lt", func(b *Bounds, v float64) { b.LT = &v }},
}

// Compiler turns request parameters into a CompiledFilter.
type Compiler struct {
	identity map[string]struct{}
}

// NewCompiler creates a compiler with the given identity field names.
// A nil slice selects DefaultIdentityFields.
func NewCompiler(identityFields []string) *Compiler {
	if identityFields == nil {
		identityFields = DefaultIdentityFields
	}
	identity := make(map[string]struct{}, len(identityFields))
	for _, f := range identityFields {
		identity[f] = struct{}{}
	}
	return &Compiler{identity: identity}
}

// Compile compiles params with the default identity fields.
func Compile(params Params) (CompiledFilter, error) {
	return NewCompiler(nil).Compile(params)
}

// Compile classifies every supplied parameter as pagination control, identity
// filter or attribute filter.
//
// Attribute names ending in a range suffix contribute a bound to a single Range
// predicate per base path; non-numeric bound values are dropped. Other attribute
// values are coerced: strings become PartialText, everything else Exact.
// Names are visited in sorted order so a plain name and its range form
// always resolve the same way: the range wins.
func (c *Compiler) Compile(params Params) (CompiledFilter, error) {
	filter := CompiledFilter{
		Identity:   map[string]any{},
		Attributes: map[string]Predicate{},
	}

	for _, name := range slices.Sorted(maps.Keys(params)) {
		raw := params[name]
		if raw == nil || name == ParamLimit || name == ParamCursor {
			continue
		}
		if _, ok := c.identity[name]; ok {
			filter.Identity[name] = raw
			continue
		}
		if err := addAttribute(filter.Attributes, name, raw); err != nil {
			return CompiledFilter{}, err
		}
	}

	return filter, nil
}

func addAttribute(attrs map[string]Predicate, name string, raw any) error {
	if base, rs, ok := splitRangeSuffix(name); ok {
		if err := ValidateFieldPath(base); err != nil {
			return err
		}
		v, ok := numericValue(raw)
		if !ok {
			return nil
		}
		pred, exists := attrs[base]
		if !exists || pred.Kind != Range {
			pred = Predicate{Kind: Range}
		}
		rs.set(&pred.Bounds, v)
		attrs[base] = pred
		return nil
	}

	if err := ValidateFieldPath(name); err != nil {
		return err
	}
	value := Coerce(raw)
	if s, ok := value.(string); ok {
		attrs[name] = Predicate{Kind: PartialText, Pattern: regexp.QuoteMeta(s), Text: s}
		return nil
	}
	attrs[name] = Predicate{Kind: Exact, Value: value}
	return nil
}

func splitRangeSuffix(name string) (string, rangeSuffix, bool) {
	for _, rs := range rangeSuffixes {
		if base, ok := strings.CutSuffix(name, rs.suffix); ok && base != "" {
			return base, rs, true
		}
	}
	return "", rangeSuffix{}, false
}
