// Package filter selects which categories a run collects.
package filter

import "strings"

// Filter narrows the category list. Matching ignores case.
type Filter struct {
	include []string
	exclude map[string]bool
}

// New creates a Filter. An empty include list keeps every default category.
func New(include, exclude []string) *Filter {
	excludeMap := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excludeMap[key(name)] = true
	}

	var inc []string
	for _, name := range include {
		if strings.TrimSpace(name) != "" {
			inc = append(inc, strings.TrimSpace(name))
		}
	}

	return &Filter{include: inc, exclude: excludeMap}
}

// ShouldCollect returns false for excluded categories.
func (f *Filter) ShouldCollect(name string) bool {
	return !f.exclude[key(name)]
}

// Apply returns the categories to collect, in order. With an include list
// the include order wins and names outside defaults are kept, so a run can
// ask for a category that has no extractor.
func (f *Filter) Apply(defaults []string) []string {
	source := defaults
	if len(f.include) > 0 {
		source = f.include
	}

	seen := make(map[string]bool, len(source))
	out := make([]string, 0, len(source))
	for _, name := range source {
		k := key(name)
		if seen[k] || !f.ShouldCollect(name) {
			continue
		}
		seen[k] = true
		out = append(out, name)
	}
	return out
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return len(f.include) == 0 && len(f.exclude) == 0
}

func key(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
