package store

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an operation that requires an existing record
// against a key with none (Get, SetFlagExclusive).
var ErrNotFound = errors.New("record not found")

// VersionDowngradeError reports an attempt to open a database at a lower
// schema version than what is already on disk. Downgrades are refused,
// never applied silently.
type VersionDowngradeError struct {
	Disk     int
	Manifest int
}

func (e *VersionDowngradeError) Error() string {
	return fmt.Sprintf("schema version on disk (%d) exceeds manifest version (%d): refusing downgrade", e.Disk, e.Manifest)
}

// IsVersionDowngrade reports whether err is a refused downgrade.
// Uses errors.As to handle wrapped errors.
func IsVersionDowngrade(err error) bool {
	var ve *VersionDowngradeError
	return errors.As(err, &ve)
}
