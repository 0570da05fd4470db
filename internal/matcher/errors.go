package matcher

import (
	"errors"
	"fmt"
)

// ErrNoOutputColumns reports a match run with no output columns configured
// on either side.
var ErrNoOutputColumns = errors.New("matcher: no output columns configured")

// UnsupportedArityError reports a match over anything but exactly two
// tables. Extra tables are rejected, never silently dropped.
type UnsupportedArityError struct {
	Count int
}

func (e *UnsupportedArityError) Error() string {
	return fmt.Sprintf("matcher: joining %d tables is unsupported (exactly 2 required)", e.Count)
}

// DuplicateOutputColumnError reports two sides producing the same final
// output column name.
type DuplicateOutputColumnError struct {
	Name string
}

func (e *DuplicateOutputColumnError) Error() string {
	return fmt.Sprintf("matcher: duplicate output column %q; set a prefix on one side", e.Name)
}
