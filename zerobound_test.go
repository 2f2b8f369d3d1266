package conjecture

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func constantDraw(b byte) DrawFunc {
	return func(_ *Data, n int) []byte {
		out := make([]byte, n)
		for i := range out {
			out[i] = b
		}
		return out
	}
}

func TestZeroBoundPassesThroughBeforeCap(t *testing.T) {
	draw := zeroBound(constantDraw(0xAB), 100)
	data := NewData(draw, 100, 1, nil)

	out := data.Draw(4, 0, false)
	require.Equal(t, []byte{0xAB, 0xAB, 0xAB, 0xAB}, out)
	require.False(t, data.HitZeroBound())
}

func TestZeroBoundForcesZeroAtCap(t *testing.T) {
	draw := zeroBound(constantDraw(0xAB), 4)
	data := NewData(draw, 4, 1, nil)

	data.Draw(4, 0, false) // fills [0,4), lands index at cap

	out := data.Draw(2, 0, false) // index >= cap now
	require.Equal(t, []byte{0, 0}, out)
	require.True(t, data.HitZeroBound())
}

func TestZeroBoundStraddlesCap(t *testing.T) {
	draw := zeroBound(constantDraw(0xFF), 4)
	data := NewData(draw, 4, 1, nil)

	out := data.Draw(6, 0, false) // straddles the cap at position 4
	require.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0}, out)
	require.True(t, data.HitZeroBound())
}

func TestZeroBoundForcesAtMaxDepth(t *testing.T) {
	draw := zeroBound(constantDraw(0xFF), 1000)
	data := NewData(draw, 1000, 1, nil)
	data.Recurse(func() {
		data.depth = MaxDepth / 2 // depth*2 >= MaxDepth
		out := data.Draw(3, 0, false)
		require.Equal(t, []byte{0, 0, 0}, out)
	})
}
