package conflict

import (
	"strings"

	"github.com/BaSui01/coordflow/types"
)

// mergeResolve applies the type-directed merge heuristics: all-text
// outputs merge by union of distinct lines, all-sequence outputs by
// structural union, all-record outputs by recursive key merge. When the
// shapes are heterogeneous the full output list is returned unmerged.
func mergeResolve(results []*types.AgentResult) *types.Resolution {
	outputs := make([]any, len(results))
	for i, res := range results {
		outputs[i] = res.Output
	}
	return &types.Resolution{
		Strategy: string(StrategyMerge),
		Output:   mergeOutputs(outputs),
	}
}

func mergeOutputs(outputs []any) any {
	if len(outputs) == 1 {
		return outputs[0]
	}
	switch {
	case allStrings(outputs):
		return mergeTexts(outputs)
	case allSlices(outputs):
		return mergeSlices(outputs)
	case allMaps(outputs):
		return mergeMaps(outputs)
	default:
		return outputs
	}
}

func allStrings(outputs []any) bool {
	for _, o := range outputs {
		if _, ok := o.(string); !ok {
			return false
		}
	}
	return true
}

func allSlices(outputs []any) bool {
	for _, o := range outputs {
		if asSlice(o) == nil {
			return false
		}
	}
	return true
}

func allMaps(outputs []any) bool {
	for _, o := range outputs {
		if asMap(o) == nil {
			return false
		}
	}
	return true
}

// asSlice widens the slice shapes hosts commonly hand over.
func asSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	default:
		return nil
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// mergeTexts joins the union of distinct lines in first-seen order.
func mergeTexts(outputs []any) string {
	seen := make(map[string]struct{})
	var lines []string
	for _, o := range outputs {
		for _, line := range strings.Split(o.(string), "\n") {
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// mergeSlices unions elements with structural de-duplication in
// first-seen order.
func mergeSlices(outputs []any) []any {
	seen := make(map[string]struct{})
	var merged []any
	for _, o := range outputs {
		for _, elem := range asSlice(o) {
			key := types.Canonical(elem)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, elem)
		}
	}
	return merged
}

// mergeMaps deep-merges key by key. Primitive conflicts keep the
// first-seen value; nested maps and slices merge recursively.
func mergeMaps(outputs []any) map[string]any {
	merged := make(map[string]any)
	for _, o := range outputs {
		for key, value := range asMap(o) {
			existing, ok := merged[key]
			if !ok {
				merged[key] = value
				continue
			}
			merged[key] = mergeValues(existing, value)
		}
	}
	return merged
}

func mergeValues(existing, incoming any) any {
	if em, im := asMap(existing), asMap(incoming); em != nil && im != nil {
		return mergeMaps([]any{em, im})
	}
	if es, is := asSlice(existing), asSlice(incoming); es != nil && is != nil {
		return mergeSlices([]any{es, is})
	}
	// Primitive or mismatched shapes: first-seen wins.
	return existing
}
