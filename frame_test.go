package main

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFrameScales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 540, 960))
	frame, err := NormalizeFrame(src)
	require.NoError(t, err)
	assert.Equal(t, CanonicalWidth, frame.Bounds().Dx())
	assert.Equal(t, CanonicalHeight, frame.Bounds().Dy())
}

func TestNormalizeFrameCanonicalPassthrough(t *testing.T) {
	src := newTestFrame(colRed)
	frame, err := NormalizeFrame(src)
	require.NoError(t, err)
	assert.Equal(t, CanonicalWidth, frame.Bounds().Dx())
	r, g, b, _ := frame.At(10, 10).RGBA()
	assert.Equal(t, uint32(colRed.R), r>>8)
	assert.Equal(t, uint32(colRed.G), g>>8)
	assert.Equal(t, uint32(colRed.B), b>>8)
}

func TestNormalizeFrameRejectsBadInput(t *testing.T) {
	_, err := NormalizeFrame(nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = NormalizeFrame(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestValidateFrame(t *testing.T) {
	assert.ErrorIs(t, ValidateFrame(nil), ErrInvalidFrame)
	assert.ErrorIs(t, ValidateFrame(image.NewRGBA(image.Rect(0, 0, 0, 10))), ErrInvalidFrame)
	assert.NoError(t, ValidateFrame(newTestFrame(colGray)))
}

func TestBoundsCenter(t *testing.T) {
	assert.Equal(t, Point{X: 120, Y: 230}, NewBounds(100, 200, 40, 60).Center())
}

func TestBoundsContains(t *testing.T) {
	b := NewBounds(10, 10, 20, 20)
	assert.True(t, b.Contains(Point{X: 10, Y: 10}))
	assert.True(t, b.Contains(Point{X: 30, Y: 30}))
	assert.False(t, b.Contains(Point{X: 31, Y: 10}))
	assert.False(t, b.Contains(Point{X: 9, Y: 15}))
}

func TestBoundsIntersect(t *testing.T) {
	r := image.Rect(0, 0, 100, 100)

	clipped := NewBounds(80, 80, 50, 50).Intersect(r)
	assert.Equal(t, NewBounds(80, 80, 20, 20), clipped)

	inside := NewBounds(10, 10, 20, 20).Intersect(r)
	assert.Equal(t, NewBounds(10, 10, 20, 20), inside)

	outside := NewBounds(200, 200, 10, 10).Intersect(r)
	assert.True(t, outside.Empty())
}
