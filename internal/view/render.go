// Package view draws rasters with their detected faces onto a display
// surface. It holds no domain state; callers pass a session snapshot in.
package view

import (
	"fmt"
	"image"
	"image/color"
	"slices"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/viewport"
)

// Role decides how faces are drawn
type Role int

const (
	RoleSource Role = iota
	RoleTarget
)

// gocv draws in BGR order while rasters are RGB, so colours are swapped
// once here
func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: b, G: g, B: r, A: 255}
}

var (
	colorSource     = rgb(0, 0, 255)
	colorUnselected = rgb(0, 255, 0)
	colorSelected   = rgb(255, 0, 0)
	colorBackground = gocv.NewScalar(32, 32, 32, 0)
)

// Layer is a raster with the faces to outline on it
type Layer struct {
	Image    gocv.Mat
	Faces    []detector.Face
	Selected []int
	Role     Role
}

// Render letterboxes the layer image into a surface-sized RGB canvas and
// outlines its faces. Target faces get 1-based index labels; selected ones
// are drawn red and thicker. The caller must close the returned Mat.
func Render(l Layer, surface viewport.Size) (gocv.Mat, error) {
	if l.Image.Empty() {
		return gocv.NewMat(), fmt.Errorf("nothing to render")
	}
	if !surface.Realized() {
		surface = viewport.FallbackSize
	}

	canvas := gocv.NewMatWithSizeFromScalar(colorBackground, surface.H, surface.W, gocv.MatTypeCV8UC3)

	m := viewport.New(l.Image.Cols(), l.Image.Rows(), surface)
	size := m.ScaledSize()
	if size.X > 0 && size.Y > 0 {
		if err := paste(&canvas, l.Image, m, surface); err != nil {
			canvas.Close()
			return gocv.NewMat(), err
		}
	}

	for i, f := range l.Faces {
		box := m.RectToDisplay(f.Box)
		c, thickness := faceStyle(l, i)
		if err := gocv.Rectangle(&canvas, box, c, thickness); err != nil {
			canvas.Close()
			return gocv.NewMat(), fmt.Errorf("outline face %d: %w", i+1, err)
		}

		if l.Role == RoleTarget {
			if err := gocv.PutText(&canvas, fmt.Sprintf("%d", i+1), labelOrigin(box),
				gocv.FontHersheySimplex, 0.5, c, 1); err != nil {
				canvas.Close()
				return gocv.NewMat(), fmt.Errorf("label face %d: %w", i+1, err)
			}
		}
	}

	return canvas, nil
}

// paste scales img by m and copies it into the letterbox area of canvas
func paste(canvas *gocv.Mat, img gocv.Mat, m viewport.Mapper, surface viewport.Size) error {
	size := m.ScaledSize()
	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(img, &resized, size, 0, 0, gocv.InterpolationArea); err != nil {
		return fmt.Errorf("scale image: %w", err)
	}

	ox, oy := m.Offset()
	dst := image.Rect(int(ox), int(oy), int(ox)+size.X, int(oy)+size.Y).Intersect(image.Rect(0, 0, surface.W, surface.H))
	if dst.Dx() != size.X || dst.Dy() != size.Y {
		return nil
	}
	roi := canvas.Region(dst)
	defer roi.Close()
	if err := resized.CopyTo(&roi); err != nil {
		return fmt.Errorf("paste image: %w", err)
	}
	return nil
}

func faceStyle(l Layer, i int) (color.RGBA, int) {
	if l.Role == RoleSource {
		return colorSource, 2
	}
	if slices.Contains(l.Selected, i) {
		return colorSelected, 3
	}
	return colorUnselected, 2
}

// labelOrigin places text just above the box, or inside it at the top edge
func labelOrigin(box image.Rectangle) image.Point {
	y := box.Min.Y - 5
	if y < 12 {
		y = box.Min.Y + 15
	}
	return image.Pt(box.Min.X, y)
}

// HalfSize is the surface each layer of a side-by-side frame is drawn on
func HalfSize(surface viewport.Size) viewport.Size {
	return viewport.Size{W: surface.W / 2, H: surface.H}
}

// Split maps a point on a side-by-side frame to the half it falls in and
// the point's coordinates within that half
func Split(surface viewport.Size, x, y int) (Role, float64, float64) {
	half := HalfSize(surface)
	if x < half.W {
		return RoleSource, float64(x), float64(y)
	}
	return RoleTarget, float64(x - half.W), float64(y)
}

// SplitRect maps a rectangle drawn on a side-by-side frame into the half
// holding it. A rectangle spanning both halves is an error.
func SplitRect(surface viewport.Size, r image.Rectangle) (Role, viewport.Rect, error) {
	if r.Empty() {
		return 0, viewport.Rect{}, viewport.ErrEmptyRect
	}
	role, x1, y1 := Split(surface, r.Min.X, r.Min.Y)
	if other, _, _ := Split(surface, r.Max.X-1, r.Max.Y-1); other != role {
		return 0, viewport.Rect{}, fmt.Errorf("selection %v spans both images", r)
	}
	return role, viewport.Rect{
		X1: x1,
		Y1: y1,
		X2: x1 + float64(r.Dx()),
		Y2: y1 + float64(r.Dy()),
	}, nil
}

// SideBySide renders two layers onto one canvas, each in half the surface
func SideBySide(left, right Layer, surface viewport.Size) (gocv.Mat, error) {
	half := HalfSize(surface)

	a, err := Render(left, half)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("left: %w", err)
	}
	defer a.Close()
	b, err := Render(right, half)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("right: %w", err)
	}
	defer b.Close()

	out := gocv.NewMat()
	if err := gocv.Hconcat(a, b, &out); err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("join halves: %w", err)
	}
	return out, nil
}
