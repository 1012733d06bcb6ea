package index

import "fmt"

// Op is a metadata filter operator. The set is closed: unknown operators are
// rejected at parse time rather than passed through to the backends.
type Op string

const (
	OpEquals Op = "equals"
	OpRange  Op = "range"
	OpIn     Op = "in"
)

// Filter is one typed condition on a metadata field.
type Filter struct {
	Field  string   `json:"field"`
	Op     Op       `json:"op"`
	Value  string   `json:"value,omitempty"`  // equals
	Min    string   `json:"min,omitempty"`    // range (inclusive)
	Max    string   `json:"max,omitempty"`    // range (inclusive)
	Values []string `json:"values,omitempty"` // in
}

// FilterSet is a conjunction of filters. A nil FilterSet matches everything.
type FilterSet struct {
	Filters []Filter `json:"filters"`
}

// Equals builds an equality filter.
func Equals(field, value string) Filter {
	return Filter{Field: field, Op: OpEquals, Value: value}
}

// Range builds an inclusive range filter. String comparison is used, which is
// correct for ISO dates and zero-padded codes.
func Range(field, min, max string) Filter {
	return Filter{Field: field, Op: OpRange, Min: min, Max: max}
}

// In builds a set-membership filter.
func In(field string, values ...string) Filter {
	return Filter{Field: field, Op: OpIn, Values: values}
}

// Validate checks every filter in the set for a known operator and the
// operands that operator requires.
func (fs *FilterSet) Validate() error {
	if fs == nil {
		return nil
	}
	for _, f := range fs.Filters {
		if f.Field == "" {
			return fmt.Errorf("filter has empty field")
		}
		switch f.Op {
		case OpEquals:
			if f.Value == "" {
				return fmt.Errorf("equals filter on %q has empty value", f.Field)
			}
		case OpRange:
			if f.Min == "" && f.Max == "" {
				return fmt.Errorf("range filter on %q has no bounds", f.Field)
			}
		case OpIn:
			if len(f.Values) == 0 {
				return fmt.Errorf("in filter on %q has no values", f.Field)
			}
		default:
			return fmt.Errorf("unknown filter operator: %q", f.Op)
		}
	}
	return nil
}

// Empty reports whether the set has no conditions.
func (fs *FilterSet) Empty() bool {
	return fs == nil || len(fs.Filters) == 0
}
