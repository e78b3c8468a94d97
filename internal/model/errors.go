package model

import "errors"

// ErrNotFound is returned when the chain reports no such block or receipt.
var ErrNotFound = errors.New("not found")
