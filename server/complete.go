package server

import (
	"strings"

	"github.com/djlacavera21/Apophis/script"
)

// Completion is a candidate offered for a prefix.
type Completion struct {
	Label string
	Kind  string // "keyword", "builtin" or "variable"
}

const maxCompletions = 100

// complete gathers candidates matching prefix from the script keywords,
// the builtins and the names bound in env.
func complete(prefix string, env script.Env) []Completion {
	if prefix == "" {
		return nil
	}
	var items []Completion
	seen := make(map[string]bool)
	add := func(name, kind string) {
		if seen[name] || !strings.HasPrefix(name, prefix) {
			return
		}
		seen[name] = true
		items = append(items, Completion{Label: name, Kind: kind})
	}

	for _, kw := range script.Keywords() {
		add(kw, "keyword")
	}
	for _, name := range script.BuiltinNames() {
		add(name, "builtin")
	}
	for _, name := range env.Names() {
		add(name, "variable")
	}

	if len(items) > maxCompletions {
		items = items[:maxCompletions]
	}
	return items
}
