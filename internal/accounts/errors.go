package accounts

import "errors"

var (
	// ErrUserNotFound is returned when no user matches a lookup.
	ErrUserNotFound = errors.New("accounts: user not found")

	// ErrAmbiguousUser is returned when a name lookup matches more than one user.
	ErrAmbiguousUser = errors.New("accounts: more than one user matches")

	// ErrProfileNotFound is returned when an attendant has no schedule profile.
	ErrProfileNotFound = errors.New("accounts: schedule profile not found")

	// ErrInvalidProfile is returned for malformed schedule profiles.
	ErrInvalidProfile = errors.New("accounts: invalid schedule profile")
)
