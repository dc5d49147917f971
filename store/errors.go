package store

import "errors"

// ErrUserExists is returned by AddUser when the username is already taken.
var ErrUserExists = errors.New("store: username already exists")

// ErrUserNotFound names the unknown-account condition. The sqlite Store's
// user lookups do not return it: they report an unknown user with zero
// values (empty hash and salt, false, or an empty secret).
var ErrUserNotFound = errors.New("store: user not found")
