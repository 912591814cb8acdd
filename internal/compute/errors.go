package compute

import (
	"fmt"
	"strings"
)

// FormulaError wraps a parse/decode failure with the caliber it came from.
// It aborts compilation for the whole version.
type FormulaError struct {
	CaliberCode string
	Err         error
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("caliber %s: %v", e.CaliberCode, e.Err)
}

func (e *FormulaError) Unwrap() error { return e.Err }

// CycleError names the calibers participating in a reference cycle.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return "circular caliber references: " + strings.Join(e.Cycle, " -> ")
}

// MissingSourceError degrades a single cell, never the whole run.
type MissingSourceError struct {
	Source string
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("no source value for %q", e.Source)
}
