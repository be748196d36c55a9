// Package metaindex implements the per-key metadata value index used
// for filterByMetadata: eq/ne/contains/startsWith/endsWith/in/notIn and
// the numeric range operators gt/gte/lt/lte/between, with a numeric
// shadow map answering the range queries.
package metaindex

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Operator selects a metadata filter semantics.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpIn         Operator = "in"
	OpNotIn      Operator = "notIn"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpBetween    Operator = "between"
)

// Filter is one metadata predicate; Value holds the single comparison
// value (eq/ne/contains/startsWith/endsWith/gt/gte/lt/lte) and Values
// holds the list operand (in/notIn/between).
type Filter struct {
	Key      string
	Operator Operator
	Value    string
	Values   []string
}

// Index is a key -> value -> set<volumeId> index plus a numeric shadow
// map keyed the same way, used for range comparisons.
type Index struct {
	mu      sync.RWMutex
	byValue map[string]map[string]map[string]struct{}
	numeric map[string]map[string]float64
}

// New creates an empty metadata index.
func New() *Index {
	return &Index{
		byValue: make(map[string]map[string]map[string]struct{}),
		numeric: make(map[string]map[string]float64),
	}
}

// Add indexes volumeID under every key/value pair in metadata.
func (idx *Index) Add(volumeID string, metadata map[string]string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for key, value := range metadata {
		if idx.byValue[key] == nil {
			idx.byValue[key] = make(map[string]map[string]struct{})
		}
		if idx.byValue[key][value] == nil {
			idx.byValue[key][value] = make(map[string]struct{})
		}
		idx.byValue[key][value][volumeID] = struct{}{}

		if f, err := strconv.ParseFloat(value, 64); err == nil {
			if idx.numeric[key] == nil {
				idx.numeric[key] = make(map[string]float64)
			}
			idx.numeric[key][volumeID] = f
		}
	}
}

// Remove undoes Add for volumeID under the given metadata.
func (idx *Index) Remove(volumeID string, metadata map[string]string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for key, value := range metadata {
		if vals, ok := idx.byValue[key]; ok {
			if set, ok := vals[value]; ok {
				delete(set, volumeID)
				if len(set) == 0 {
					delete(vals, value)
				}
			}
			if len(vals) == 0 {
				delete(idx.byValue, key)
			}
		}
		if nums, ok := idx.numeric[key]; ok {
			delete(nums, volumeID)
			if len(nums) == 0 {
				delete(idx.numeric, key)
			}
		}
	}
}

// Match returns every volume id satisfying every filter (AND-combined).
func (idx *Index) Match(filters []Filter) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(filters) == 0 {
		return nil
	}

	var result map[string]struct{}
	for _, f := range filters {
		matched := idx.matchOneLocked(f)
		if result == nil {
			result = matched
			continue
		}
		for id := range result {
			if _, ok := matched[id]; !ok {
				delete(result, id)
			}
		}
	}

	out := make([]string, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (idx *Index) matchOneLocked(f Filter) map[string]struct{} {
	switch f.Operator {
	case OpEq:
		return idx.copySet(idx.byValue[f.Key][f.Value])
	case OpNe:
		return idx.allExcept(f.Key, func(v string) bool { return v != f.Value })
	case OpContains:
		return idx.allExcept(f.Key, func(v string) bool {
			return strings.Contains(strings.ToLower(v), strings.ToLower(f.Value))
		})
	case OpStartsWith:
		return idx.allExcept(f.Key, func(v string) bool {
			return strings.HasPrefix(strings.ToLower(v), strings.ToLower(f.Value))
		})
	case OpEndsWith:
		return idx.allExcept(f.Key, func(v string) bool {
			return strings.HasSuffix(strings.ToLower(v), strings.ToLower(f.Value))
		})
	case OpIn:
		set := make(map[string]struct{})
		for _, v := range f.Values {
			for id := range idx.byValue[f.Key][v] {
				set[id] = struct{}{}
			}
		}
		return set
	case OpNotIn:
		excluded := make(map[string]struct{}, len(f.Values))
		for _, v := range f.Values {
			excluded[v] = struct{}{}
		}
		return idx.allExcept(f.Key, func(v string) bool {
			_, ok := excluded[v]
			return !ok
		})
	case OpGt:
		return idx.numericMatch(f.Key, func(x, ref float64) bool { return x > ref }, f.Value)
	case OpGte:
		return idx.numericMatch(f.Key, func(x, ref float64) bool { return x >= ref }, f.Value)
	case OpLt:
		return idx.numericMatch(f.Key, func(x, ref float64) bool { return x < ref }, f.Value)
	case OpLte:
		return idx.numericMatch(f.Key, func(x, ref float64) bool { return x <= ref }, f.Value)
	case OpBetween:
		if len(f.Values) != 2 {
			return map[string]struct{}{}
		}
		lo, loErr := strconv.ParseFloat(f.Values[0], 64)
		hi, hiErr := strconv.ParseFloat(f.Values[1], 64)
		if loErr != nil || hiErr != nil {
			return map[string]struct{}{}
		}
		set := make(map[string]struct{})
		for id, x := range idx.numeric[f.Key] {
			if x >= lo && x <= hi {
				set[id] = struct{}{}
			}
		}
		return set
	default:
		return map[string]struct{}{}
	}
}

func (idx *Index) numericMatch(key string, cmp func(x, ref float64) bool, value string) map[string]struct{} {
	ref, err := strconv.ParseFloat(value, 64)
	set := make(map[string]struct{})
	if err != nil {
		return set
	}
	for id, x := range idx.numeric[key] {
		if cmp(x, ref) {
			set[id] = struct{}{}
		}
	}
	return set
}

// allExcept scans every value under key and unions ids whose raw string
// value passes predicate. Used for operators that cannot be answered by
// a direct map lookup (ne/contains/startsWith/endsWith/notIn).
func (idx *Index) allExcept(key string, predicate func(value string) bool) map[string]struct{} {
	set := make(map[string]struct{})
	for value, ids := range idx.byValue[key] {
		if !predicate(value) {
			continue
		}
		for id := range ids {
			set[id] = struct{}{}
		}
	}
	return set
}

func (idx *Index) copySet(src map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(src))
	for id := range src {
		out[id] = struct{}{}
	}
	return out
}
