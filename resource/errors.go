package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/minios-linux/reskit/culture"
)

var (
	// ErrEditDenied is returned when CanEdit or a begin-editing guard refuses
	// a mutation of an (entity, culture) pair.
	ErrEditDenied = errors.New("edit denied")
	// ErrKeyExists is returned when adding or renaming onto a key that is
	// already present in the entity.
	ErrKeyExists = errors.New("key already exists")
	// ErrKeyNotFound is returned when a key is not present in the entity.
	ErrKeyNotFound = errors.New("key not found")
	// ErrNoNeutral is recorded for culture files that have no neutral file.
	ErrNoNeutral = errors.New("no neutral resource file")
	// ErrEntityNotFound is returned for change sets naming an unknown entity.
	ErrEntityNotFound = errors.New("entity not found")
)

// EditError describes one denied (entity, culture) pair.
type EditError struct {
	Entity  string
	Culture culture.Key
	Reason  string
}

func (e *EditError) Error() string {
	return fmt.Sprintf("%s [%s]: %v: %s", e.Entity, e.Culture, ErrEditDenied, e.Reason)
}

func (e *EditError) Unwrap() error { return ErrEditDenied }

// FileError records an I/O failure for a single file during reload or save.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// ChangeError reports a structurally invalid change in a ChangeSet.
// Nothing of the set is applied when it is returned.
type ChangeError struct {
	Index  int
	Change Change
	Err    error
}

func (e *ChangeError) Error() string {
	return fmt.Sprintf("change #%d (%s %s/%s): %v", e.Index+1, e.Change.Kind, e.Change.Entity, e.Change.Key, e.Err)
}

func (e *ChangeError) Unwrap() error { return e.Err }

// IsCanceled reports whether err means the operation was abandoned, either
// by the caller or because a newer operation of the same kind replaced it.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
