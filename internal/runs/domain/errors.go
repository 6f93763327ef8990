package domain

import "fmt"

// RunNotFoundError is returned when a run lookup has no match.
type RunNotFoundError struct {
	GUID string
}

func (e *RunNotFoundError) Error() string {
	if e.GUID == "" {
		return "run not found"
	}
	return fmt.Sprintf("run not found: %s", e.GUID)
}
