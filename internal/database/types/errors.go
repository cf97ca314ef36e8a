package types

import "errors"

// ErrStoreUnavailable wraps every persistence failure that survived retries.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrMemberNotFound is returned when a member record does not exist.
var ErrMemberNotFound = errors.New("member not found")
