package conflict

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/coordflow/types"
)

func TestProperty_MergeTextsLineUnion(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	lineGen := gen.RegexMatch("[a-z]{1,4}")
	textGen := gen.SliceOfN(3, lineGen).Map(func(lines []string) string {
		return strings.Join(lines, "\n")
	})

	properties.Property("merged text holds every input line exactly once", prop.ForAll(
		func(a, b string) bool {
			merged := mergeTexts([]any{a, b})
			got := strings.Split(merged, "\n")

			seen := make(map[string]int)
			for _, line := range got {
				seen[line]++
			}
			for line, n := range seen {
				if n != 1 {
					t.Logf("line %q appears %d times", line, n)
					return false
				}
			}
			for _, line := range append(strings.Split(a, "\n"), strings.Split(b, "\n")...) {
				if seen[line] != 1 {
					t.Logf("input line %q missing from merge", line)
					return false
				}
			}
			return true
		},
		textGen, textGen,
	))

	properties.Property("merging a text with itself is the identity on distinct lines", prop.ForAll(
		func(a string) bool {
			return mergeTexts([]any{a, a}) == mergeTexts([]any{a})
		},
		textGen,
	))

	properties.TestingRun(t)
}

func TestProperty_MergeSlicesStructuralUnion(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	sliceGen := gen.SliceOfN(4, gen.IntRange(0, 5)).Map(func(ints []int) []any {
		out := make([]any, len(ints))
		for i, v := range ints {
			out[i] = v
		}
		return out
	})

	properties.Property("union contains every input element with no structural duplicates", prop.ForAll(
		func(a, b []any) bool {
			merged := mergeSlices([]any{a, b})

			seen := make(map[string]bool)
			for _, elem := range merged {
				key := types.Canonical(elem)
				if seen[key] {
					t.Logf("duplicate element %v in merge", elem)
					return false
				}
				seen[key] = true
			}
			for _, elem := range append(append([]any{}, a...), b...) {
				if !seen[types.Canonical(elem)] {
					t.Logf("input element %v missing from merge", elem)
					return false
				}
			}
			return true
		},
		sliceGen, sliceGen,
	))

	properties.TestingRun(t)
}
