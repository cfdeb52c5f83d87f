// Package ident allocates the sequential, zero-padded record identifiers used
// by every clinic store.
package ident

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
)

// Width is the minimum number of digits of a rendered identifier. Counters
// past 999 render wider rather than wrapping or failing.
const Width = 3

// ErrCorruptKey is returned when a persisted key is not a non-negative integer.
var ErrCorruptKey = errors.New("identifier is not a non-negative integer")

// Allocator hands out identifiers as "highest used value + 1". Deleted
// identifiers are never reused within a process. It persists nothing.
type Allocator struct {
	last uint64
}

// Seed builds an allocator positioned after the highest key in keys.
func Seed(keys iter.Seq[string]) (*Allocator, error) {
	a := &Allocator{}
	for k := range keys {
		n, err := Parse(k)
		if err != nil {
			return nil, err
		}
		if n > a.last {
			a.last = n
		}
	}
	return a, nil
}

// Parse converts a persisted identifier back into its counter value.
func Parse(id string) (uint64, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrCorruptKey, id)
	}
	return n, nil
}

// Format renders n with the zero-padding policy.
func Format(n uint64) string {
	return fmt.Sprintf("%0*d", Width, n)
}

// Peek returns the identifier the next Commit will consume.
func (a *Allocator) Peek() string { return Format(a.last + 1) }

// Commit consumes the identifier returned by Peek.
func (a *Allocator) Commit() { a.last++ }
