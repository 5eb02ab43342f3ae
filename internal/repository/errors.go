// Package repository implements the persistence contracts over MySQL.
// Sentinel errors defined here let handlers distinguish failure modes
// without inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/voicecraft/speech-backend/internal/auth"
)

// ErrNotFound is returned when a single-row lookup matches nothing and the
// caller asked for an error rather than a nil row.
var ErrNotFound = errors.New("not found")

// ErrInvalidBlockOrder is returned by ReorderBlocks when the submitted ids
// are not exactly the speech's current block set.
var ErrInvalidBlockOrder = errors.New("invalid block order")

// ErrDuplicate is returned when an insert violates a unique constraint,
// e.g. two links for the same (provider, provider_id). It is the auth
// store sentinel so identity resolution can match it without depending on
// this package.
var ErrDuplicate = auth.ErrDuplicate

// isDuplicateErr reports whether err is a MySQL duplicate-key violation
// (error 1062).
func isDuplicateErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}
