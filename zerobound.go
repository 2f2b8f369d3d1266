package conjecture

// zeroBound wraps a DrawFunc so that once data.depth*2 >= MaxDepth or
// data.Index() >= cap, the rest of the draw is forced to zero — and if the
// draw straddles cap, the tail past cap is zeroed while the head survives.
// Either case marks the affected range forced and sets data.hitZeroBound,
// matching the trie's expectation that positions beyond cap are single-
// valued.
func zeroBound(next DrawFunc, cap int) DrawFunc {
	return func(data *Data, n int) []byte {
		if data.depth*2 >= MaxDepth || data.Index() >= cap {
			for i := data.Index(); i < data.Index()+n; i++ {
				data.forcedIndices[i] = true
			}
			data.hitZeroBound = true
			return make([]byte, n)
		}

		result := next(data, n)
		if len(result) != n {
			padded := make([]byte, n)
			copy(padded, result)
			result = padded
		}

		if data.Index()+n >= cap {
			m := cap - data.Index()
			out := make([]byte, n)
			copy(out, result[:m])
			for i := cap; i < data.Index()+n; i++ {
				data.forcedIndices[i] = true
			}
			data.hitZeroBound = true
			return out
		}
		return result
	}
}
