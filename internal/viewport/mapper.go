package viewport

import (
	"errors"
	"image"
	"math"
)

// ErrEmptyRect is returned when a display rectangle maps to an empty or
// inverted image-space rectangle after clamping.
var ErrEmptyRect = errors.New("empty crop area")

// FallbackSize is substituted for a display surface that has not been
// realized yet (width or height of one pixel or less).
var FallbackSize = Size{W: 400, H: 400}

// Size is a display surface size in display pixels
type Size struct {
	W, H int
}

// Realized reports whether the surface has usable dimensions
func (s Size) Realized() bool {
	return s.W > 1 && s.H > 1
}

// Rect is a rectangle in display coordinates. Corners may be given in any order.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// Normalize returns the rectangle with X1<=X2 and Y1<=Y2
func (r Rect) Normalize() Rect {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

// Mapper converts between full-resolution image pixels and a scaled,
// centered (letterboxed) display surface. A Mapper is only valid for the
// surface size it was built with; build a new one on every redraw.
type Mapper struct {
	imgW, imgH int
	scale      float64
	offX, offY float64
}

// New builds a Mapper for an image of imgW x imgH pixels shown on surface,
// substituting FallbackSize for an unrealized surface.
func New(imgW, imgH int, surface Size) Mapper {
	return NewWithFallback(imgW, imgH, surface, FallbackSize)
}

// NewWithFallback is New with an explicit fallback surface size
func NewWithFallback(imgW, imgH int, surface, fallback Size) Mapper {
	if !surface.Realized() {
		surface = fallback
	}
	m := Mapper{imgW: imgW, imgH: imgH, scale: 1}
	if imgW <= 0 || imgH <= 0 {
		return m
	}

	sw, sh := float64(surface.W), float64(surface.H)
	m.scale = math.Min(sw/float64(imgW), sh/float64(imgH))
	m.offX = (sw - float64(imgW)*m.scale) / 2
	m.offY = (sh - float64(imgH)*m.scale) / 2
	return m
}

// Scale returns the uniform scale-to-fit factor
func (m Mapper) Scale() float64 {
	return m.scale
}

// Offset returns the centering offsets
func (m Mapper) Offset() (float64, float64) {
	return m.offX, m.offY
}

// ScaledSize returns the on-surface size of the whole image, truncated to
// whole display pixels.
func (m Mapper) ScaledSize() image.Point {
	return image.Pt(int(float64(m.imgW)*m.scale), int(float64(m.imgH)*m.scale))
}

// ToDisplay maps an image pixel coordinate to display coordinates
func (m Mapper) ToDisplay(px, py float64) (float64, float64) {
	return px*m.scale + m.offX, py*m.scale + m.offY
}

// ToImage maps a display coordinate to image coordinates clamped to
// [0,W) x [0,H).
func (m Mapper) ToImage(dx, dy float64) (float64, float64) {
	x := (dx - m.offX) / m.scale
	y := (dy - m.offY) / m.scale
	return clampOpen(x, m.imgW), clampOpen(y, m.imgH)
}

// ToImagePoint maps a display coordinate to the containing image pixel
func (m Mapper) ToImagePoint(dx, dy float64) image.Point {
	x, y := m.ToImage(dx, dy)
	return image.Pt(int(x), int(y))
}

// RectToDisplay maps an image rectangle to display coordinates
func (m Mapper) RectToDisplay(r image.Rectangle) image.Rectangle {
	x1, y1 := m.ToDisplay(float64(r.Min.X), float64(r.Min.Y))
	x2, y2 := m.ToDisplay(float64(r.Max.X), float64(r.Max.Y))
	return image.Rect(int(x1), int(y1), int(x2), int(y2))
}

// RectToImage converts a display rectangle (corners in any order) into an
// image-space rectangle clamped to the image bounds. Corners are truncated
// toward zero before clamping.
func (m Mapper) RectToImage(r Rect) (image.Rectangle, error) {
	r = r.Normalize()

	x1 := max(0, int((r.X1-m.offX)/m.scale))
	y1 := max(0, int((r.Y1-m.offY)/m.scale))
	x2 := min(m.imgW, int((r.X2-m.offX)/m.scale))
	y2 := min(m.imgH, int((r.Y2-m.offY)/m.scale))

	if x1 >= x2 || y1 >= y2 {
		return image.Rectangle{}, ErrEmptyRect
	}
	return image.Rect(x1, y1, x2, y2), nil
}

func clampOpen(v float64, limit int) float64 {
	if v < 0 || limit <= 0 {
		return 0
	}
	if upper := math.Nextafter(float64(limit), 0); v > upper {
		return upper
	}
	return v
}
