package regions

import "golang.org/x/exp/constraints"

// AlignUp rounds a up to a multiple of b. b must be a power of two.
func AlignUp[I constraints.Integer](a, b I) I {
	return (a + b - 1) &^ (b - 1)
}

// AlignDown rounds a down to a multiple of b. b must be a power of two.
func AlignDown[I constraints.Integer](a, b I) I {
	return a &^ (b - 1)
}

// IsPowerOfTwo reports whether v is a power of two greater than zero.
func IsPowerOfTwo[I constraints.Integer](v I) bool {
	return v > 0 && v&(v-1) == 0
}
