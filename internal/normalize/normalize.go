// Package normalize turns one ink component into the fixed-size grayscale
// tensor a digit classifier expects.
package normalize

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/Brownie44l1/digitpad/internal/segment"
	"github.com/nfnt/resize"
)

// DefaultSize is the side of the MNIST-style input square.
const DefaultSize = 28

// DefaultPaddingRatio is the margin added around a component, relative to its longer side.
const DefaultPaddingRatio = 0.2

// deadZone is the intensity below which antialiasing fringe is suppressed.
const deadZone = 0.1

// inkRed is the red channel of the pad's ink colour (#1c1b19). Solid ink is
// rendered at this level rather than pure black, so it reaches an intensity
// of about 0.89, or 0.88 after the dead zone, as it does in the browser pad.
const inkRed = 0x1c

// ErrEmptyCrop is returned when a component's crop has no area inside the raster.
var ErrEmptyCrop = errors.New("component crop is empty")

// Policy selects how the crop is placed in the square and how intensity is mapped.
// It must match the preprocessing the classifier was trained with.
type Policy int

const (
	// PolicyMargin scales the crop to Size-2, leaving a one pixel border,
	// and rescales intensity through a dead zone.
	PolicyMargin Policy = iota
	// PolicyEdgeToEdge scales the crop to the full Size with plain inverted intensity.
	PolicyEdgeToEdge
)

func (p Policy) String() string {
	switch p {
	case PolicyEdgeToEdge:
		return "edge"
	default:
		return "margin"
	}
}

// ParsePolicy parses "margin" or "edge".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "margin":
		return PolicyMargin, nil
	case "edge", "edge-to-edge":
		return PolicyEdgeToEdge, nil
	default:
		return PolicyMargin, fmt.Errorf("unknown normalization policy %q", s)
	}
}

// Options configure a Normalizer. Zero values fall back to the defaults, so
// a PaddingRatio of 0 means the default 0.2, not an unpadded crop.
type Options struct {
	Size         int
	PaddingRatio float64
	Policy       Policy
}

// Tensor is a single-channel Size×Size image in row-major order, ink high.
type Tensor struct {
	Size int
	Data []float32
}

// Shape is the NCHW shape of the tensor.
func (t Tensor) Shape() []int64 {
	return []int64{1, 1, int64(t.Size), int64(t.Size)}
}

// Normalizer crops, letterboxes and inverts components. It owns a working
// canvas reused by every call, so it is not safe for concurrent use and the
// Data of a returned Tensor is only valid until the next call.
type Normalizer struct {
	size    int
	inner   int
	padding float64
	policy  Policy

	canvas *image.Gray
	data   []float32
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.PaddingRatio <= 0 {
		opts.PaddingRatio = DefaultPaddingRatio
	}
	inner := opts.Size
	if opts.Policy == PolicyMargin && opts.Size > 2 {
		inner = opts.Size - 2
	}
	return &Normalizer{
		size:    opts.Size,
		inner:   inner,
		padding: opts.PaddingRatio,
		policy:  opts.Policy,
		canvas:  image.NewGray(image.Rect(0, 0, opts.Size, opts.Size)),
		data:    make([]float32, opts.Size*opts.Size),
	}
}

// Size returns the side of the produced tensors.
func (n *Normalizer) Size() int {
	return n.size
}

// Crop returns the padded region of the raster that Normalize reads for a
// component, clamped to the raster.
func (n *Normalizer) Crop(bounds image.Rectangle, c segment.Component) image.Rectangle {
	pad := int(math.Round(n.padding * float64(max(c.W, c.H))))
	sx := max(c.X-pad, 0)
	sy := max(c.Y-pad, 0)
	sw := min(c.W+pad*2, bounds.Dx()-sx)
	sh := min(c.H+pad*2, bounds.Dy()-sy)
	if c.W < 1 || c.H < 1 || sw <= 0 || sh <= 0 {
		return image.Rectangle{}
	}
	return image.Rect(sx, sy, sx+sw, sy+sh)
}

// Normalize renders the component as dark ink on white paper, scales it so
// its longer side fills the inner square, centres it, and converts it to
// inverted intensity in [0,1].
func (n *Normalizer) Normalize(raster *image.Alpha, c segment.Component) (Tensor, error) {
	crop := n.Crop(raster.Bounds(), c)
	if crop.Empty() {
		return Tensor{}, fmt.Errorf("component at (%d,%d) %dx%d: %w", c.X, c.Y, c.W, c.H, ErrEmptyCrop)
	}
	sw, sh := crop.Dx(), crop.Dy()

	paper := image.NewGray(image.Rect(0, 0, sw, sh))
	for y := 0; y < sh; y++ {
		src := raster.Pix[(crop.Min.Y+y)*raster.Stride+crop.Min.X:]
		dst := paper.Pix[y*paper.Stride:]
		for x := 0; x < sw; x++ {
			dst[x] = paperLevel(src[x])
		}
	}

	scale := float64(n.inner) / float64(max(sw, sh))
	dw := max(1, int(math.Round(float64(sw)*scale)))
	dh := max(1, int(math.Round(float64(sh)*scale)))
	scaled := resize.Resize(uint(dw), uint(dh), paper, resize.Bilinear)

	for i := range n.canvas.Pix {
		n.canvas.Pix[i] = 255
	}
	ox := (n.size - dw) / 2
	oy := (n.size - dh) / 2
	draw.Draw(n.canvas, image.Rect(ox, oy, ox+dw, oy+dh), scaled, scaled.Bounds().Min, draw.Src)

	for i, r := range n.canvas.Pix {
		n.data[i] = n.intensity(r)
	}
	return Tensor{Size: n.size, Data: n.data}, nil
}

// paperLevel composites ink of coverage a over white paper.
func paperLevel(a uint8) uint8 {
	return uint8(255 - (int(a)*(255-inkRed)+127)/255)
}

func (n *Normalizer) intensity(r uint8) float32 {
	v := 1 - float64(r)/255
	if n.policy == PolicyMargin {
		v = (v - deadZone) / (1 - deadZone)
	}
	return float32(math.Min(1, math.Max(0, v)))
}
