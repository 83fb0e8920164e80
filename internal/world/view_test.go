package world

import (
	"context"
	"testing"

	"github.com/elementia/worldsim/internal/area"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewLocateRoundTrip(t *testing.T) {
	f := newFixture(t, 8, nil, coordGen{})
	req := NewRequest(-13, 21, 30, 5)
	v, err := f.cache.Resolve(context.Background(), req)
	require.NoError(t, err)

	for x := 0; x < req.Width(); x++ {
		for y := 0; y < req.Height(); y++ {
			c, err := v.Locate(x, y)
			require.NoError(t, err)
			assert.Equal(t, area.KeyOf(req.Left+x, req.Top+y, 8), c.Area)
			assert.GreaterOrEqual(t, c.LocalX, 0)
			assert.Less(t, c.LocalX, 8)
			assert.GreaterOrEqual(t, c.LocalY, 0)
			assert.Less(t, c.LocalY, 8)

			gx, gy := v.Position(c)
			require.Equal(t, x, gx)
			require.Equal(t, y, gy)

			n, err := v.Int32(x, y, area.LayerNoise)
			require.NoError(t, err)
			assert.Equal(t, int32((req.Left+x)*1000+req.Top+y), n, "cell (%d,%d) reads its own world cell", x, y)
		}
	}
}

func TestViewOutOfRangeReadsSentinel(t *testing.T) {
	f := newFixture(t, 16, nil, coordGen{})
	v, err := f.cache.Resolve(context.Background(), NewRequest(0, 30, 30, 0))
	require.NoError(t, err)

	for _, p := range [][2]int{{-1, 0}, {0, -1}, {31, 0}, {0, 31}} {
		h, err := v.Uint16(p[0], p[1], area.LayerHeight)
		require.NoError(t, err)
		assert.Equal(t, uint16(OutOfRangeValue), h)
		w, err := v.Uint8(p[0], p[1], area.LayerWater)
		require.NoError(t, err)
		assert.Equal(t, uint8(OutOfRangeValue), w)
		n, err := v.Int32(p[0], p[1], area.LayerNoise)
		require.NoError(t, err)
		assert.Equal(t, int32(OutOfRangeValue), n)
	}

	// the inclusive upper bound still reads real data when the area is held
	h, err := v.Uint16(30, 30, area.LayerHeight)
	require.NoError(t, err)
	assert.Equal(t, uint16(30), h)
}

func TestViewInclusiveBoundOutsideGridIsAnError(t *testing.T) {
	f := newFixture(t, 16, nil, coordGen{})
	v, err := f.cache.Resolve(context.Background(), NewRequest(0, 32, 32, 0))
	require.NoError(t, err)

	_, err = v.Uint16(32, 0, area.LayerHeight)
	require.ErrorIs(t, err, ErrOutOfBounds)
	var oob *OutOfBoundsError
	require.ErrorAs(t, err, &oob)
	assert.Equal(t, 2, oob.Col)
	assert.Equal(t, 2, oob.Cols)

	assert.ErrorIs(t, v.SetUint8(0, 32, area.LayerWater, 1), ErrOutOfBounds)
	assert.ErrorIs(t, v.SetUint16(-1, 0, area.LayerHeight, 1), ErrOutOfBounds)
}

func TestViewWritesGoThroughToSharedAreas(t *testing.T) {
	f := newFixture(t, 16, nil, nil)
	a, err := f.cache.Resolve(context.Background(), NewRequest(0, 32, 16, 0))
	require.NoError(t, err)
	b, err := f.cache.Resolve(context.Background(), NewRequest(20, 40, 16, 0))
	require.NoError(t, err)

	require.NoError(t, a.SetUint8(25, 4, area.LayerWater, 42))
	require.NoError(t, a.SetUint16(25, 4, area.LayerHeight, 900))
	require.NoError(t, a.SetInt32(25, 4, area.LayerNoise, -12))

	w, err := b.Uint8(5, 4, area.LayerWater)
	require.NoError(t, err)
	assert.Equal(t, uint8(42), w)
	h, _ := b.Uint16(5, 4, area.LayerHeight)
	assert.Equal(t, uint16(900), h)
	n, _ := b.Int32(5, 4, area.LayerNoise)
	assert.Equal(t, int32(-12), n)
}

func TestViewLayerMismatch(t *testing.T) {
	f := newFixture(t, 16, nil, coordGen{})
	v, err := f.cache.Resolve(context.Background(), NewRequest(0, 16, 16, 0))
	require.NoError(t, err)

	h, err := v.Uint16(3, 3, area.LayerWater)
	require.NoError(t, err)
	assert.Zero(t, h, "unknown 16-bit layer reads zero")
	w, err := v.Uint8(3, 3, area.Layer(99))
	require.NoError(t, err)
	assert.Zero(t, w)

	require.NoError(t, v.SetUint8(3, 3, area.LayerHeight, 9))
	require.NoError(t, v.SetInt32(3, 3, area.LayerWater, 9))
	got, _ := v.Uint16(3, 3, area.LayerHeight)
	assert.Equal(t, uint16(3), got, "mismatched writes are ignored")
	water, _ := v.Uint8(3, 3, area.LayerWater)
	assert.Equal(t, uint8(3), water)
}
