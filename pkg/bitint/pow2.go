// SPDX-License-Identifier: MIT

/*
Package bitint provides integer helpers for sizing audio blocks and the
queues between them. All functions are O(1) or O(log n), allocate nothing
and are safe to call from a real-time goroutine.

Usage:

	// FFT windows must be powers of two
	size := bitint.NextPowerOfTwo(1000) // 1024

	// smallest delay that keeps a block size adapter from deadlocking
	delay := bitint.MinimumDelay(inner, outer)

----------------------------------------------------------------------

NextPowerOfTwo subtracts one before taking the bit length, so that exact
powers of two map onto themselves:

	size 8: bits.Len(7) = 3, 1<<3 = 8
	size 9: bits.Len(8) = 4, 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, and 1 for
// sizes <= 0.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two: exactly one
// bit is set, so clearing the lowest set bit with n&(n-1) yields zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
