package services

import "errors"

// ErrForbidden is returned when an authenticated caller lacks the
// project-scoped role an operation requires. Distinct from
// store.ErrNotFound, which is also used to hide projects from
// non-members.
var ErrForbidden = errors.New("forbidden")
