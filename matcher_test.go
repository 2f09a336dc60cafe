package main

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	colGray  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	colRed   = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	colGreen = color.RGBA{R: 30, G: 200, B: 60, A: 255}
	colBlue  = color.RGBA{R: 40, G: 60, B: 220, A: 255}
)

// newTestFrame builds a canonical-size frame filled with the given color
func newTestFrame(fill color.RGBA) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, CanonicalWidth, CanonicalHeight))
	fillRect(frame, Bounds{X: 0, Y: 0, W: CanonicalWidth, H: CanonicalHeight}, fill)
	return frame
}

func fillRect(img *image.RGBA, b Bounds, c color.RGBA) {
	for y := b.Y; y < b.Y+b.H; y++ {
		for x := b.X; x < b.X+b.W; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// solidTemplate builds a single-color template image
func solidTemplate(name string, tag ScreenTag, w, h int, c color.RGBA) Template {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fillRect(img, Bounds{X: 0, Y: 0, W: w, H: h}, c)
	return Template{Name: name, Tag: tag, Image: img}
}

func TestMatchFindsBlock(t *testing.T) {
	frame := newTestFrame(colGray)
	block := Bounds{X: 200, Y: 304, W: 48, H: 48}
	fillRect(frame, block, colRed)

	m := NewTemplateMatcher(0.75)
	tpl := solidTemplate("red", TagVictory, 48, 48, colRed)

	r, err := m.Match(frame, tpl)
	require.NoError(t, err)
	assert.True(t, r.Found)
	assert.GreaterOrEqual(t, r.Score, 0.99)
	assert.True(t, block.Contains(r.Bounds.Center()), "match center %+v outside block %+v", r.Bounds.Center(), block)
}

func TestMatchBelowThresholdNotFound(t *testing.T) {
	frame := newTestFrame(colGray)

	m := NewTemplateMatcher(0.75)
	tpl := solidTemplate("red", TagVictory, 48, 48, colRed)

	r, err := m.Match(frame, tpl)
	require.NoError(t, err)
	assert.False(t, r.Found)
	assert.Less(t, r.Score, 0.75)
}

func TestMatchScoreReflectsPartialAgreement(t *testing.T) {
	frame := newTestFrame(colGray)
	// Only the top half of the template's area is present in the frame
	fillRect(frame, Bounds{X: 400, Y: 400, W: 48, H: 24}, colRed)

	m := NewTemplateMatcher(0.95)
	tpl := solidTemplate("red", TagVictory, 48, 48, colRed)

	r, err := m.Match(frame, tpl)
	require.NoError(t, err)
	assert.False(t, r.Found)
	assert.Greater(t, r.Score, 0.3)
	assert.Less(t, r.Score, 0.8)
}

func TestMatchRegionRestrictsSearch(t *testing.T) {
	frame := newTestFrame(colGray)
	block := Bounds{X: 600, Y: 1000, W: 48, H: 48}
	fillRect(frame, block, colGreen)

	m := NewTemplateMatcher(0.75)

	away := NewBounds(0, 0, 300, 300)
	tpl := solidTemplate("green", TagPopup, 48, 48, colGreen)
	tpl.Region = &away

	r, err := m.Match(frame, tpl)
	require.NoError(t, err)
	assert.False(t, r.Found, "match outside its region")

	covering := NewBounds(500, 900, 300, 300)
	tpl.Region = &covering
	r, err = m.Match(frame, tpl)
	require.NoError(t, err)
	assert.True(t, r.Found)
	assert.True(t, block.Contains(r.Bounds.Center()))
}

func TestMatchInvalidFrame(t *testing.T) {
	m := NewTemplateMatcher(0.75)
	tpl := solidTemplate("red", TagVictory, 48, 48, colRed)

	_, err := m.Match(nil, tpl)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestMatchOversizedTemplate(t *testing.T) {
	frame := newTestFrame(colGray)
	m := NewTemplateMatcher(0.75)
	tpl := solidTemplate("huge", TagVictory, CanonicalWidth+10, 48, colRed)

	r, err := m.Match(frame, tpl)
	require.NoError(t, err)
	assert.False(t, r.Found)
	assert.Zero(t, r.Score)
}

func TestBestOfPrefersHigherScore(t *testing.T) {
	frame := newTestFrame(colGray)
	fillRect(frame, Bounds{X: 200, Y: 200, W: 48, H: 48}, colRed)

	m := NewTemplateMatcher(0.75)
	candidates := []Template{
		solidTemplate("blue", TagVictory, 48, 48, colBlue),
		solidTemplate("red", TagVictory, 48, 48, colRed),
	}

	r, err := m.BestOf(frame, candidates)
	require.NoError(t, err)
	assert.True(t, r.Found)
	assert.Equal(t, "red", r.Template)
}

func TestBestOfNoCandidates(t *testing.T) {
	frame := newTestFrame(colGray)
	m := NewTemplateMatcher(0.75)

	r, err := m.BestOf(frame, nil)
	require.NoError(t, err)
	assert.False(t, r.Found)
}
