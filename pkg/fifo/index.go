// SPDX-License-Identifier: MIT
package fifo

import (
	"fmt"
	"math"
)

// slots is the number of storage positions of a ring. A ring holding at most
// n elements has n+1 slots; one slot always stays unused so that equal read
// and write cursors mean empty and a write cursor one slot behind the read
// cursor means full.
type slots int

// checkCapacity rejects capacities for which capacity+1 slots cannot be
// indexed with 32 bit cursors.
func checkCapacity(capacity int) (slots, error) {
	if capacity < 0 || uint64(capacity) >= math.MaxUint32 || capacity == math.MaxInt {
		return 0, fmt.Errorf("%w: capacity %d out of range", ErrConfiguration, capacity)
	}
	return slots(capacity + 1), nil
}

// advance moves cursor at forward by k positions, 0 <= k < n.
func (n slots) advance(at, k int) int {
	at += k
	if at >= int(n) {
		at -= int(n)
	}
	return at
}

// distance returns how many positions cursor to is ahead of cursor from.
func (n slots) distance(from, to int) int {
	d := to - from
	if d < 0 {
		d += int(n)
	}
	return d
}

// store copies src into buf starting at cursor at, wrapping around the end
// of buf, and returns the cursor after the last stored element.
// len(src) must be smaller than len(buf).
func store[T any](buf []T, at int, src []T) int {
	k := copy(buf[at:], src)
	if k < len(src) {
		return copy(buf, src[k:])
	}
	return slots(len(buf)).advance(at, k)
}

// load copies len(dst) elements out of buf starting at cursor at, wrapping
// around the end of buf, and returns the cursor after the last loaded
// element. len(dst) must be smaller than len(buf).
func load[T any](dst []T, buf []T, at int) int {
	k := copy(dst, buf[at:])
	if k < len(dst) {
		return copy(dst[k:], buf)
	}
	return slots(len(buf)).advance(at, k)
}
