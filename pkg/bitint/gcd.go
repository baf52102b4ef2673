// SPDX-License-Identifier: MIT
package bitint

// GCD returns the greatest common divisor of a and b using Euclid's
// algorithm. GCD(a, 0) is |a|.
func GCD(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// MinimumDelay returns the smallest delay in frames with which an adapter
// between an outer block size and an inner block size never waits forever:
// inner - gcd(inner, outer). Non-positive sizes yield 0.
//
//	inner  outer  delay
//	10     1      9
//	1      10     0
//	12     8      8
//	64     63     63
func MinimumDelay(inner, outer int) int {
	if inner <= 0 || outer <= 0 {
		return 0
	}
	return inner - GCD(inner, outer)
}
