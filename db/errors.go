package db

import "errors"

var (
	// ErrNotFound is returned for lookups of records that do not exist.
	ErrNotFound = errors.New("not found")

	ErrUsernameTaken     = errors.New("username already taken")
	ErrUnknownUser       = errors.New("username not found")
	ErrPasswordIncorrect = errors.New("password incorrect")
)
