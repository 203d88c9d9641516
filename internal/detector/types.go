package detector

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// ErrDetection marks a failure of the underlying detector. Finding no faces
// is not an error.
var ErrDetection = errors.New("face detection failed")

// Point represents a 2D point
type Point struct {
	X, Y float32
}

// BoundingBox is a raw detector box in float image coordinates
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Rect truncates the box to integer pixels and clamps it to bounds.
// Inverted boxes are not reordered; the result is then empty.
func (b BoundingBox) Rect(bounds image.Rectangle) image.Rectangle {
	r := image.Rectangle{
		Min: image.Pt(int(b.X1), int(b.Y1)),
		Max: image.Pt(int(b.X2), int(b.Y2)),
	}
	return r.Intersect(bounds)
}

// Landmarks represents 5 facial landmark points
type Landmarks struct {
	LeftEye    Point
	RightEye   Point
	Nose       Point
	LeftMouth  Point
	RightMouth Point
}

// Detection is what a Backend reports for one face, before normalization
type Detection struct {
	BoundingBox  BoundingBox
	Landmarks    Landmarks
	HasLandmarks bool
	Score        float32
}

// Face is a detected face in integer pixel coordinates of the image it was
// detected on. Box is never empty and lies inside the image.
type Face struct {
	Box          image.Rectangle
	Landmarks    Landmarks
	HasLandmarks bool
	Score        float32
}

// BBox returns the face bounding box
func (f Face) BBox() image.Rectangle {
	return f.Box
}

// Backend is a concrete face detection model
type Backend interface {
	Detect(img gocv.Mat) ([]Detection, error)
	Close() error
}
