package ink

import (
	"image"
	"image/color"
)

// FromImage converts an uploaded picture into an ink raster.
//
// Pictures with any transparency are read through their alpha channel, the
// way the browser pad exports strokes. Fully opaque pictures such as scans
// are treated as dark ink on light paper, so ink is the inverted luminance.
func FromImage(img image.Image) *image.Alpha {
	b := img.Bounds()
	out := image.NewAlpha(image.Rect(0, 0, b.Dx(), b.Dy()))

	if !opaque(img) {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				_, _, _, a := img.At(x, y).RGBA()
				out.SetAlpha(x-b.Min.X, y-b.Min.Y, color.Alpha{A: uint8(a >> 8)})
			}
		}
		return out
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			out.SetAlpha(x-b.Min.X, y-b.Min.Y, color.Alpha{A: 255 - g.Y})
		}
	}
	return out
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}
