package ledger

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already registered")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrStoreUnavailable = errors.New("progress store unavailable")
)
