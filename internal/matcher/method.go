// Package matcher joins two enriched tables on coordinate match keys and
// projects the configured output columns into a fresh result table.
package matcher

import (
	"fmt"
	"strings"
)

// Method selects the join semantics for a match run.
type Method string

const (
	// MethodLeft emits every left-table row, with empty right-side cells
	// when no match exists.
	MethodLeft Method = "left"
	// MethodInner emits only matched pairs.
	MethodInner Method = "inner"
)

// ParseMethod resolves a user-supplied method name.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(name) {
	case string(MethodLeft):
		return MethodLeft, nil
	case string(MethodInner):
		return MethodInner, nil
	}
	return "", fmt.Errorf("unknown join method %q (recognized: left, inner)", name)
}
