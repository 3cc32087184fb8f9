package colorutil

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, Orange, c)

	c, err = ParseHex("#00ff0080")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{G: 255, A: 0x80}, c)

	_, err = ParseHex("orange")
	assert.Error(t, err)
}

func TestHexRoundTrip(t *testing.T) {
	for _, s := range []string{"#123456", "#abcdef7f"} {
		c, err := ParseHex(s)
		require.NoError(t, err)
		assert.Equal(t, s, Hex(c))
	}
}

func TestLerp(t *testing.T) {
	assert.Equal(t, Black, Lerp(Black, White, 0))
	assert.Equal(t, White, Lerp(Black, White, 1))
	assert.Equal(t, White, Lerp(Black, White, 7))
	mid := Lerp(Black, White, 0.5)
	assert.Equal(t, uint8(128), mid.R)
	assert.Equal(t, uint8(255), mid.A)
}

func TestPremultiply(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 128, A: 128}, Premultiply(color.RGBA{R: 255, A: 128}))
	assert.Equal(t, Red, Premultiply(Red))
}
