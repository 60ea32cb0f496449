package indexstore

import (
	"errors"
	"fmt"
)

// ErrPersist is the sentinel for index write failures. A failed save is
// fatal for the run: continuing would break the monotonic-save guarantee.
var ErrPersist = errors.New("index persist failure")

// persistErr wraps err as a fatal persist failure.
func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersist, op, err)
}

// IsPersistError reports whether err is a fatal index write failure.
func IsPersistError(err error) bool { return errors.Is(err, ErrPersist) }
