package fieldmap

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var aliasesYAML []byte

// loadAliases parses the embedded alias table mapping each variable to the
// header spellings that imply it.
func loadAliases() (map[Variable][]string, error) {
	raw := make(map[string][]string)
	if err := yaml.Unmarshal(aliasesYAML, &raw); err != nil {
		return nil, eris.Wrap(err, "fieldmap: parse alias table")
	}

	aliases := make(map[Variable][]string, len(raw))
	for name, list := range raw {
		v, err := ParseVariable(name)
		if err != nil {
			return nil, eris.Wrapf(err, "fieldmap: alias table entry %q", name)
		}
		aliases[v] = list
	}
	return aliases, nil
}

// GuessAssignments assigns variables from recognizable column headers.
// Matching is case-insensitive and ignores spaces. Explicit assignments are
// never overwritten, and a variable is only guessed once.
func (f *FieldMap) GuessAssignments() error {
	aliases, err := loadAliases()
	if err != nil {
		return err
	}

	for _, column := range f.table.Columns {
		normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(column)), " ", "")
		for _, v := range Variables() {
			if _, assigned := f.assignments[v]; assigned {
				continue
			}
			if containsString(aliases[v], normalized) {
				f.assignments[v] = column
				break
			}
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
