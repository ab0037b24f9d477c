package value_codec

import (
	"fmt"
	"strings"

	"memscan/process"
)

type FilterKind int

const (
	Exact FilterKind = iota
	Unknown
	Changed
	Unchanged
	Increased
	Decreased
	InRange
	PatternMatch
)

var filterKindNames = [...]string{
	Exact:        "exact",
	Unknown:      "unknown",
	Changed:      "changed",
	Unchanged:    "unchanged",
	Increased:    "increased",
	Decreased:    "decreased",
	InRange:      "range",
	PatternMatch: "pattern",
}

func (k FilterKind) String() string {
	if k < 0 || int(k) >= len(filterKindNames) {
		return fmt.Sprintf("FilterKind(%d)", int(k))
	}
	return filterKindNames[k]
}

// Filter is the predicate evaluated at every candidate position.
type Filter struct {
	Kind    FilterKind
	Value   Value
	Low     Value
	High    Value
	Pattern process.AOB
}

func ExactFilter(v Value) Filter { return Filter{Kind: Exact, Value: v} }

func UnknownFilter() Filter { return Filter{Kind: Unknown} }

func ChangedFilter() Filter { return Filter{Kind: Changed} }

func UnchangedFilter() Filter { return Filter{Kind: Unchanged} }

func IncreasedFilter() Filter { return Filter{Kind: Increased} }

func DecreasedFilter() Filter { return Filter{Kind: Decreased} }

// RangeFilter matches values in [lo, hi], bounds inclusive.
func RangeFilter(lo, hi Value) Filter { return Filter{Kind: InRange, Low: lo, High: hi} }

func PatternFilter(aob process.AOB) Filter { return Filter{Kind: PatternMatch, Pattern: aob} }

// NeedsPrevious reports whether the filter compares against the value of an earlier scan.
func (f Filter) NeedsPrevious() bool {
	switch f.Kind {
	case Changed, Unchanged, Increased, Decreased:
		return true
	}
	return false
}

func (f Filter) String() string {
	switch f.Kind {
	case Exact:
		return "exact " + f.Value.String()
	case InRange:
		return fmt.Sprintf("range %s..%s", f.Low, f.High)
	case PatternMatch:
		return "pattern " + f.Pattern.String()
	}
	return f.Kind.String()
}

// ParseFilter builds a filter for type t from a command word and its operands,
// e.g. ("exact", "100"), ("range", "1", "5"), ("pattern", "D2 ?? 00").
// An exact byte array containing wildcards becomes a pattern filter.
func ParseFilter(t ValueType, kind string, args ...string) (Filter, error) {
	kind = strings.ToLower(kind)
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("filter %s takes %d argument(s), got %d", kind, n, len(args))
		}
		return nil
	}

	switch kind {
	case "exact", "eq", "=":
		if err := need(1); err != nil {
			return Filter{}, err
		}
		if t == ByteArray {
			aob, err := ParseAOB(args[0])
			if err != nil {
				return Filter{}, err
			}
			if aob.HasWildcards() {
				return PatternFilter(aob), nil
			}
			return ExactFilter(BytesValue(aob.Pattern)), nil
		}
		v, err := ParseValue(t, args[0])
		if err != nil {
			return Filter{}, err
		}
		return ExactFilter(v), nil
	case "unknown", "any":
		return UnknownFilter(), need(0)
	case "changed":
		return ChangedFilter(), need(0)
	case "unchanged", "same":
		return UnchangedFilter(), need(0)
	case "increased", "inc", "+":
		return IncreasedFilter(), need(0)
	case "decreased", "dec", "-":
		return DecreasedFilter(), need(0)
	case "range", "between":
		if err := need(2); err != nil {
			return Filter{}, err
		}
		lo, err := ParseValue(t, args[0])
		if err != nil {
			return Filter{}, err
		}
		hi, err := ParseValue(t, args[1])
		if err != nil {
			return Filter{}, err
		}
		return RangeFilter(lo, hi), nil
	case "pattern", "aob":
		if err := need(1); err != nil {
			return Filter{}, err
		}
		aob, err := ParseAOB(args[0])
		if err != nil {
			return Filter{}, err
		}
		return PatternFilter(aob), nil
	}
	return Filter{}, fmt.Errorf("%w: %q", ErrUnsupportedFilter, kind)
}
