package repository

import "errors"

// errDuplicateToken means a generated token collided with a stored one.
// With 256 bits of randomness this indicates a broken generator.
var errDuplicateToken = errors.New("refresh token already exists")
