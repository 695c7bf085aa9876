package numbering

import "fmt"

// NumberingError is a tagged error for registry failures: Type is
// "range_overlap" or "no_slot_available".
type NumberingError struct {
	Type    string
	Message string
	Context string
}

func (e *NumberingError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("numbering: %s (%s): %s", e.Type, e.Context, e.Message)
	}
	return fmt.Sprintf("numbering: %s: %s", e.Type, e.Message)
}

// IsRangeOverlap reports whether err is a NumberingError for a range
// collision between two epics.
func IsRangeOverlap(err error) bool {
	ne, ok := err.(*NumberingError)
	return ok && ne.Type == "range_overlap"
}

// IsNoSlotAvailable reports whether err is a NumberingError raised when
// an epic's range has no free story slot.
func IsNoSlotAvailable(err error) bool {
	ne, ok := err.(*NumberingError)
	return ok && ne.Type == "no_slot_available"
}
