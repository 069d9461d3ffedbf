package recipe

import (
	"fmt"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// Splits a "run" string into words with shell quoting rules.
//
// $VAR and ${VAR} expand to declared variables only; a reference to any
// other name is an error. Command substitution is rejected and glob
// patterns are kept literally, so the result never depends on the host.
func splitRun(run string, vars map[string]string) ([]string, error) {
	var words []*syntax.Word
	err := syntax.NewParser().Words(strings.NewReader(run), func(w *syntax.Word) bool {
		words = append(words, w)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", run, err)
	}

	var missing []string
	for _, w := range words {
		syntax.Walk(w, func(node syntax.Node) bool {
			pe, ok := node.(*syntax.ParamExp)
			if !ok || pe.Param == nil {
				return true
			}
			name := pe.Param.Value
			if _, declared := vars[name]; !declared && isIdentifier(name) && !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
			return true
		})
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: run %q references %s", ErrUndeclaredVariable, run, strings.Join(missing, ", "))
	}

	pairs := make([]string, 0, len(vars))
	for k, v := range vars {
		pairs = append(pairs, k+"="+v)
	}

	fields, err := expand.Fields(&expand.Config{Env: expand.ListEnviron(pairs...)}, words...)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", run, err)
	}
	return fields, nil
}

// Whether s is a valid shell variable name.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
