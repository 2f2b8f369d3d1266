package conjecture

// IsSimpleMask reports whether m is a simple mask: m == 2^n - 1 for some
// n >= 0. Simple masks are the only kind the trie's side-tables can
// represent, since they restrict a byte to a contiguous [0, m] range that
// is itself a power-of-two sized interval.
func IsSimpleMask(m byte) bool {
	return m&(m+1) == 0
}

// defaultMask is used wherever a node has no recorded mask: a full byte,
// i.e. the simple mask 0xFF.
const defaultMask byte = 0xFF
