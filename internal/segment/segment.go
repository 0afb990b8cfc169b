// Package segment splits an ink raster into connected components, one per
// handwritten digit, ordered the way a number is read.
package segment

import (
	"image"
	"sort"
)

const (
	// DefaultAlphaThreshold is the alpha a pixel must exceed to count as ink.
	DefaultAlphaThreshold = 20
	// DefaultMinPixels is the noise floor: smaller components are dropped.
	DefaultMinPixels = 40
)

// Options tune segmentation. Zero values fall back to the defaults.
type Options struct {
	AlphaThreshold uint8
	MinPixels      int
}

func (o Options) withDefaults() Options {
	if o.AlphaThreshold == 0 {
		o.AlphaThreshold = DefaultAlphaThreshold
	}
	if o.MinPixels <= 0 {
		o.MinPixels = DefaultMinPixels
	}
	return o
}

// Component is the tight bounding box of one connected ink region in raster
// coordinates, plus the number of ink pixels it contains.
type Component struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	W     int `json:"w"`
	H     int `json:"h"`
	Count int `json:"count"`
}

// Rect returns the component bounds as an image rectangle.
func (c Component) Rect() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.W, c.Y+c.H)
}

// Segment finds every 8-connected ink region of the raster holding at least
// MinPixels pixels and returns them sorted by their left edge. Coordinates
// are relative to the raster's bounds origin. A raster without ink yields nil.
func Segment(raster *image.Alpha, opts Options) []Component {
	opts = opts.withDefaults()
	b := raster.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return nil
	}

	isInk := func(x, y int) bool {
		return raster.Pix[y*raster.Stride+x] > opts.AlphaThreshold
	}

	visited := make([]bool, width*height)
	var stack []image.Point
	var out []Component

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if visited[idx] || !isInk(x, y) {
				continue
			}

			minX, maxX, minY, maxY := x, x, y, y
			count := 0
			visited[idx] = true
			stack = append(stack[:0], image.Point{X: x, Y: y})

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				count++
				minX, maxX = min(minX, p.X), max(maxX, p.X)
				minY, maxY = min(minY, p.Y), max(maxY, p.Y)

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || ny < 0 || nx >= width || ny >= height {
							continue
						}
						nidx := ny*width + nx
						if visited[nidx] || !isInk(nx, ny) {
							continue
						}
						visited[nidx] = true
						stack = append(stack, image.Point{X: nx, Y: ny})
					}
				}
			}

			if count >= opts.MinPixels {
				out = append(out, Component{
					X:     minX,
					Y:     minY,
					W:     maxX - minX + 1,
					H:     maxY - minY + 1,
					Count: count,
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })
	return out
}
