// Package identity derives stable task identifiers from a task family and
// its significant parameter values.
package identity

import (
	"sort"
	"strings"
)

// Parameter is one named parameter value bound to a task instance.
// Insignificant parameters configure behavior without creating a distinct
// task; they never contribute to the identifier.
type Parameter struct {
	Name        string
	Value       string
	Significant bool
}

// TaskID returns the canonical identifier for a task instance. The same
// family and the same significant parameter values always produce the same
// id, regardless of the order parameters are supplied in.
//
// The format is "Family(name=value, name2=value2)" with significant
// parameters sorted by name, or "Family()" when none are significant.
func TaskID(family string, params []Parameter) string {
	significant := make([]Parameter, 0, len(params))
	for _, p := range params {
		if p.Significant {
			significant = append(significant, p)
		}
	}
	sort.Slice(significant, func(i, j int) bool {
		return significant[i].Name < significant[j].Name
	})

	var b strings.Builder
	b.WriteString(family)
	b.WriteByte('(')
	for i, p := range significant {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	b.WriteByte(')')
	return b.String()
}

// FromMap builds a parameter list where every entry is significant except
// those named in insignificant. Convenience for callers that carry params
// as a plain map.
func FromMap(params map[string]string, insignificant ...string) []Parameter {
	skip := make(map[string]struct{}, len(insignificant))
	for _, name := range insignificant {
		skip[name] = struct{}{}
	}

	out := make([]Parameter, 0, len(params))
	for name, value := range params {
		_, excluded := skip[name]
		out = append(out, Parameter{Name: name, Value: value, Significant: !excluded})
	}
	return out
}
