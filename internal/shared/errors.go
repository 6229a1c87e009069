package shared

import "errors"

// ErrLockNotHeld is returned when releasing a lock owned by someone else or already expired.
var ErrLockNotHeld = errors.New("shared: lock not held")
