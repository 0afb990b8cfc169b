package segment

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(r *image.Alpha, rect image.Rectangle, a uint8) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r.SetAlpha(x, y, color.Alpha{A: a})
		}
	}
}

func TestSegmentEmptyRaster(t *testing.T) {
	r := image.NewAlpha(image.Rect(0, 0, 64, 64))
	assert.Empty(t, Segment(r, Options{}))

	// Faint pixels at or below the threshold are not ink.
	fill(r, image.Rect(0, 0, 64, 64), DefaultAlphaThreshold)
	assert.Empty(t, Segment(r, Options{}))
}

func TestSegmentZeroSizedRaster(t *testing.T) {
	assert.Empty(t, Segment(image.NewAlpha(image.Rectangle{}), Options{}))
}

func TestSegmentTightBoundingBox(t *testing.T) {
	r := image.NewAlpha(image.Rect(0, 0, 100, 80))
	fill(r, image.Rect(10, 20, 18, 35), 255)

	got := Segment(r, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, Component{X: 10, Y: 20, W: 8, H: 15, Count: 120}, got[0])
	assert.Equal(t, image.Rect(10, 20, 18, 35), got[0].Rect())
}

func TestSegmentDiagonalConnectivity(t *testing.T) {
	r := image.NewAlpha(image.Rect(0, 0, 80, 80))
	// A one-pixel diagonal line is a single 8-connected region.
	for i := 0; i < 50; i++ {
		r.SetAlpha(10+i, 10+i, color.Alpha{A: 255})
	}

	got := Segment(r, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, Component{X: 10, Y: 10, W: 50, H: 50, Count: 50}, got[0])
}

func TestSegmentDropsNoise(t *testing.T) {
	r := image.NewAlpha(image.Rect(0, 0, 100, 100))
	fill(r, image.Rect(5, 5, 8, 8), 255)     // 9 px speck
	fill(r, image.Rect(50, 50, 60, 54), 255) // exactly 40 px

	got := Segment(r, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, 50, got[0].X)
	assert.Equal(t, DefaultMinPixels, got[0].Count)

	assert.Len(t, Segment(r, Options{MinPixels: 5}), 2)
}

func TestSegmentOrdersLeftToRight(t *testing.T) {
	r := image.NewAlpha(image.Rect(0, 0, 200, 100))
	// Scan order would find the right-hand blob first since it sits higher.
	fill(r, image.Rect(120, 5, 130, 20), 255)
	fill(r, image.Rect(60, 50, 70, 70), 255)
	fill(r, image.Rect(10, 80, 20, 95), 255)

	got := Segment(r, Options{})
	require.Len(t, got, 3)
	assert.Equal(t, []int{10, 60, 120}, []int{got[0].X, got[1].X, got[2].X})
}

func TestSegmentLargeBlobDoesNotRecurse(t *testing.T) {
	r := image.NewAlpha(image.Rect(0, 0, 1200, 1200))
	fill(r, r.Bounds(), 255)

	got := Segment(r, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, 1200*1200, got[0].Count)
}

func TestSegmentSubImageCoordinates(t *testing.T) {
	r := image.NewAlpha(image.Rect(0, 0, 100, 100))
	fill(r, image.Rect(40, 40, 50, 50), 255)
	sub := r.SubImage(image.Rect(30, 30, 90, 90)).(*image.Alpha)

	got := Segment(sub, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].X)
	assert.Equal(t, 10, got[0].Y)
}
