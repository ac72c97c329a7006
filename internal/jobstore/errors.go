package jobstore

import "errors"

// ErrConflict reports that a record was not in the state a write required.
var ErrConflict = errors.New("job store conflict")
