// Package fieldmap models the per-table configuration: which column holds
// each semantic variable, the output/compare column sets, and the output
// prefix.
package fieldmap

// Variable is a recognized semantic variable assignable to a column.
type Variable string

const (
	VarAddr1   Variable = "addr1"
	VarAddr2   Variable = "addr2"
	VarCity    Variable = "city"
	VarState   Variable = "state"
	VarZipcode Variable = "zipcode"
	VarLat     Variable = "lat"
	VarLng     Variable = "lng"
)

// Variables lists every recognized variable in display order.
func Variables() []Variable {
	return []Variable{VarAddr1, VarAddr2, VarCity, VarState, VarZipcode, VarLat, VarLng}
}

// ParseVariable resolves a user-supplied name to a Variable. Unrecognized
// names fail with UnknownVariableError rather than being silently dropped.
func ParseVariable(name string) (Variable, error) {
	for _, v := range Variables() {
		if string(v) == name {
			return v, nil
		}
	}
	return "", &UnknownVariableError{Name: name}
}

// FetchVariables are the variables that must be assigned before a fetch.
func FetchVariables() []Variable {
	return []Variable{VarAddr1, VarCity, VarState, VarZipcode}
}

// MatchVariables are the variables that must be assigned before a match.
func MatchVariables() []Variable {
	return []Variable{VarLat, VarLng}
}

// ColumnKind classifies columns added via the add command.
type ColumnKind string

const (
	// KindOutput marks a column for inclusion in result tables.
	KindOutput ColumnKind = "output"
	// KindCompare marks a column used to differentiate duplicate locations.
	KindCompare ColumnKind = "compare"
)

// ParseColumnKind resolves a user-supplied kind name.
func ParseColumnKind(name string) (ColumnKind, error) {
	switch name {
	case string(KindOutput):
		return KindOutput, nil
	case string(KindCompare):
		return KindCompare, nil
	}
	return "", &UnknownColumnKindError{Name: name}
}
