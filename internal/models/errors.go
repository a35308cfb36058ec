package models

import "errors"

// ErrNotFound is returned by the ledger when a lookup matches no row.
var ErrNotFound = errors.New("not found")
