package fieldmap

import (
	"fmt"
	"strings"
)

// UnknownVariableError reports a variable name outside the closed set.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q (recognized: %s)", e.Name, variableNames())
}

// UnknownColumnError reports a column name not present in the table.
type UnknownColumnError struct {
	Column string
	Table  string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("no column named %q in %s", e.Column, e.Table)
}

// UnknownColumnKindError reports a column kind other than output or compare.
type UnknownColumnKindError struct {
	Name string
}

func (e *UnknownColumnKindError) Error() string {
	return fmt.Sprintf("unknown column kind %q (recognized: output, compare)", e.Name)
}

// IncompleteError reports required variables left unassigned before a
// fetch or match.
type IncompleteError struct {
	Table   string
	Missing []Variable
}

func (e *IncompleteError) Error() string {
	names := make([]string, len(e.Missing))
	for i, v := range e.Missing {
		names[i] = string(v)
	}
	return fmt.Sprintf("incomplete configuration for %s: %s unset", e.Table, strings.Join(names, ", "))
}

func variableNames() string {
	vars := Variables()
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}
