package store

import "fmt"

// StoreError is a tagged error for document store failures. Type is one
// of "locked", "corrupted", "init_error", "marshal_error", "write_error",
// "backup_error", "prune_error". Context carries the document name or
// path involved.
type StoreError struct {
	Type    string
	Message string
	Err     error
	Context string
}

func (e *StoreError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("store: %s (%s): %s", e.Type, e.Context, e.Message)
	}
	return fmt.Sprintf("store: %s: %s", e.Type, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsLocked reports whether err is a StoreError caused by a lock timeout.
func IsLocked(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Type == "locked"
}

// IsCorrupted reports whether err is a StoreError caused by a document
// that failed to parse.
func IsCorrupted(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Type == "corrupted"
}
