package swapper

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// Precondition and geometry errors
var (
	ErrNoSourceImage = errors.New("no source image to swap faces")
	ErrNoTargetImage = errors.New("no target image to swap faces")
	ErrNoSourceFaces = errors.New("no face detected in source image")
	ErrNoTargetFaces = errors.New("no faces detected in target image")
	ErrNoSelection   = errors.New("no target face selected")
	ErrEmptyRegion   = errors.New("empty face region")
	ErrChannels      = errors.New("unsupported channel count")
)

// CompositeError reports a failure while blending one selected target
// face. Faces processed before it stay blended in the result.
type CompositeError struct {
	Index int
	Box   image.Rectangle
	Err   error
}

func (e *CompositeError) Error() string {
	return fmt.Sprintf("face swap failed on target face %d %v: %v", e.Index+1, e.Box, e.Err)
}

func (e *CompositeError) Unwrap() error {
	return e.Err
}

// Face is the capability the compositor needs from a detected face
type Face interface {
	BBox() image.Rectangle
}

// Boxes extracts the bounding boxes of faces
func Boxes[F Face](faces []F) []image.Rectangle {
	out := make([]image.Rectangle, len(faces))
	for i, f := range faces {
		out[i] = f.BBox()
	}
	return out
}

// Options control mask synthesis and scheduling
type Options struct {
	// Inset shrinks the ellipse semi-axes from the box edges
	Inset int
	// KernelSize is the Gaussian kernel side; even values are bumped to odd
	KernelSize int
	Sigma      float64
	// Workers > 1 blends faces concurrently when all selected boxes are
	// pairwise disjoint
	Workers int
	// Progress, when set, is called after each blended face
	Progress func(done, total int)
	Logger   *slog.Logger
}

// DefaultOptions returns the standard feathering parameters
func DefaultOptions() Options {
	return Options{
		Inset:      5,
		KernelSize: 19,
		Sigma:      11,
		Workers:    1,
	}
}

func (o Options) kernel() int {
	k := o.KernelSize
	if k <= 0 {
		k = 1
	}
	if k%2 == 0 {
		k++
	}
	return k
}

// Request is one composite: the donor is always SourceFaces[0]
type Request struct {
	Source      gocv.Mat
	SourceFaces []image.Rectangle
	Target      gocv.Mat
	TargetFaces []image.Rectangle
	Selected    []int
}

// Compositor pastes the donor face over selected target faces with an
// elliptical feathered alpha blend
type Compositor struct {
	opts Options
	log  *slog.Logger
}

// NewCompositor creates a compositor
func NewCompositor(opts Options) *Compositor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{opts: opts, log: logger}
}

// Options returns the compositor options
func (c *Compositor) Options() Options {
	return c.opts
}

// Composite returns a new raster: a copy of the target with every valid
// selected face replaced by the resized donor face. Selected indices past
// the end of TargetFaces are skipped.
//
// On a precondition error the returned Mat is empty. On a *CompositeError
// the returned Mat holds the faces blended before the failure. The caller
// owns the returned Mat either way.
func (c *Compositor) Composite(req Request) (gocv.Mat, error) {
	if err := checkPreconditions(req); err != nil {
		return gocv.NewMat(), err
	}

	donor := req.SourceFaces[0].Intersect(bounds(req.Source))
	if donor.Empty() {
		return gocv.NewMat(), fmt.Errorf("donor face %v: %w", req.SourceFaces[0], ErrEmptyRegion)
	}

	start := time.Now()
	result := req.Target.Clone()

	indices := make([]int, 0, len(req.Selected))
	for _, i := range req.Selected {
		if i < 0 || i >= len(req.TargetFaces) {
			c.log.Warn("skipping stale selection", "index", i, "faces", len(req.TargetFaces))
			continue
		}
		indices = append(indices, i)
	}

	srcFace := req.Source.Region(donor)
	defer srcFace.Close()

	var err error
	if c.opts.Workers > 1 && disjoint(req.TargetFaces, indices) {
		err = c.compositeParallel(srcFace, &result, req.TargetFaces, indices)
	} else {
		err = c.compositeSequential(srcFace, &result, req.TargetFaces, indices)
	}

	c.log.Debug("composite finished",
		"faces", len(indices),
		"donor", donor,
		"elapsed", time.Since(start),
		"err", err)
	return result, err
}

func (c *Compositor) compositeSequential(srcFace gocv.Mat, result *gocv.Mat, faces []image.Rectangle, indices []int) error {
	for n, i := range indices {
		if err := c.swapOne(srcFace, result, faces[i]); err != nil {
			return &CompositeError{Index: i, Box: faces[i], Err: err}
		}
		if c.opts.Progress != nil {
			c.opts.Progress(n+1, len(indices))
		}
	}
	return nil
}

func (c *Compositor) compositeParallel(srcFace gocv.Mat, result *gocv.Mat, faces []image.Rectangle, indices []int) error {
	var (
		mu   sync.Mutex
		done int
	)

	g := new(errgroup.Group)
	g.SetLimit(c.opts.Workers)
	for _, i := range indices {
		g.Go(func() error {
			if err := c.swapOne(srcFace, result, faces[i]); err != nil {
				return &CompositeError{Index: i, Box: faces[i], Err: err}
			}
			if c.opts.Progress != nil {
				mu.Lock()
				done++
				c.opts.Progress(done, len(indices))
				mu.Unlock()
			}
			return nil
		})
	}
	return g.Wait()
}

// swapOne resizes srcFace to box (anisotropically), feathers it and
// writes the blend into result at box
func (c *Compositor) swapOne(srcFace gocv.Mat, result *gocv.Mat, box image.Rectangle) error {
	dst := box.Intersect(bounds(*result))
	if dst.Empty() || dst != box {
		return fmt.Errorf("box outside target image: %w", ErrEmptyRegion)
	}
	w, h := dst.Dx(), dst.Dy()

	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(srcFace, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLinear); err != nil {
		return fmt.Errorf("resize donor to %dx%d: %w", w, h, err)
	}
	if resized.Empty() || resized.Cols() != w || resized.Rows() != h {
		return fmt.Errorf("resize to %dx%d failed", w, h)
	}

	mask, err := FeatherMask(w, h, c.opts)
	if err != nil {
		return err
	}
	defer mask.Close()

	roi := result.Region(dst)
	defer roi.Close()

	blended, err := blend(resized, roi, mask)
	if err != nil {
		return err
	}
	defer blended.Close()
	if blended.Empty() {
		return fmt.Errorf("blend produced no pixels")
	}

	if err := blended.CopyTo(&roi); err != nil {
		return fmt.Errorf("write blended face: %w", err)
	}
	return nil
}

func checkPreconditions(req Request) error {
	switch {
	case len(req.SourceFaces) == 0:
		return ErrNoSourceFaces
	case len(req.TargetFaces) == 0:
		return ErrNoTargetFaces
	case len(req.Selected) == 0:
		return ErrNoSelection
	case req.Target.Empty():
		return ErrNoTargetImage
	case req.Source.Empty():
		return ErrNoSourceImage
	}
	return nil
}

// disjoint reports whether the boxes at indices pairwise do not overlap
func disjoint(faces []image.Rectangle, indices []int) bool {
	for a := 0; a < len(indices); a++ {
		for b := a + 1; b < len(indices); b++ {
			if faces[indices[a]].Overlaps(faces[indices[b]]) {
				return false
			}
		}
	}
	return true
}

func bounds(m gocv.Mat) image.Rectangle {
	return image.Rect(0, 0, m.Cols(), m.Rows())
}
