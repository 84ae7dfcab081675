package auction

import (
	"errors"
	"fmt"
)

// Errors returned by auction operations. Every failing operation leaves state unchanged.
var (
	ErrNotFound       = errors.New("request not found")
	ErrExpired        = errors.New("request expired")
	ErrNotYetExpired  = errors.New("request not yet expired")
	ErrNotImproving   = errors.New("salt does not improve on current best")
	ErrSaltMismatch   = errors.New("revealed salt does not match best salt")
	ErrAlreadySettled = errors.New("request already settled")
	ErrImproved       = errors.New("request has an improving solution")
	ErrUnauthorized   = errors.New("caller is not the owner")
	ErrBadValue       = errors.New("bad value")

	ErrAlreadyRegistered = fmt.Errorf("%w: request already registered", ErrBadValue)
)
