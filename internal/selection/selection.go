// Package selection tracks which detected target faces are marked for
// swapping.
package selection

import (
	"image"
	"slices"
)

// Boxed is anything with a bounding box in image pixel coordinates
type Boxed interface {
	BBox() image.Rectangle
}

// Set is an ordered set of indices into a target face list. Indices keep
// the order in which they were selected. The zero value is an empty set.
type Set struct {
	indices []int
}

// New returns an empty set
func New() *Set {
	return &Set{}
}

// HitTest returns the index of the first face whose box contains p, or -1.
// Boxes are half-open, so a point on the right or bottom edge is outside.
func HitTest[F Boxed](faces []F, p image.Point) int {
	for i, f := range faces {
		if p.In(f.BBox()) {
			return i
		}
	}
	return -1
}

// Toggle flips the selection of the first face containing the image point
// (x, y). It returns the affected index and whether it is now selected;
// index is -1 when no face contains the point and the set is unchanged.
func Toggle[F Boxed](s *Set, faces []F, x, y int) (index int, selected bool) {
	index = HitTest(faces, image.Pt(x, y))
	if index < 0 {
		return -1, false
	}
	return index, s.ToggleIndex(index)
}

// ToggleIndex selects i if absent and deselects it otherwise. It returns
// whether i is selected afterwards.
func (s *Set) ToggleIndex(i int) bool {
	if pos := slices.Index(s.indices, i); pos >= 0 {
		s.indices = slices.Delete(s.indices, pos, pos+1)
		return false
	}
	s.indices = append(s.indices, i)
	return true
}

// Contains reports whether i is selected
func (s *Set) Contains(i int) bool {
	return slices.Contains(s.indices, i)
}

// Indices returns a copy of the selected indices in selection order
func (s *Set) Indices() []int {
	return slices.Clone(s.indices)
}

// Valid returns the selected indices that are below n, in selection order
func (s *Set) Valid(n int) []int {
	out := make([]int, 0, len(s.indices))
	for _, i := range s.indices {
		if i >= 0 && i < n {
			out = append(out, i)
		}
	}
	return out
}

// Len returns the number of selected indices
func (s *Set) Len() int {
	return len(s.indices)
}

// Clear deselects everything
func (s *Set) Clear() {
	s.indices = s.indices[:0]
}
