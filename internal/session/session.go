// Package session holds the mutable state of one face swap workspace: the
// source, target and result rasters, the faces detected on each side and
// the target face selection. All operations are serialized by a mutex so a
// caller may run them off its UI thread.
package session

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/imageio"
	"github.com/dudu/faceswap/internal/selection"
	"github.com/dudu/faceswap/internal/swapper"
	"github.com/dudu/faceswap/internal/viewport"
)

// ErrNoResult is returned when saving before any successful composite
var ErrNoResult = errors.New("no result to save")

// Side names a raster slot
type Side string

const (
	Source Side = "source"
	Target Side = "target"
)

// Detector finds faces in an RGB raster
type Detector interface {
	Detect(img gocv.Mat) ([]detector.Face, error)
}

// Options configure a Session
type Options struct {
	Logger *slog.Logger
	// Fallback is the surface size used while the display has not been
	// laid out yet
	Fallback viewport.Size
}

// Session is one face swap workspace
type Session struct {
	mu         sync.Mutex
	id         string
	log        *slog.Logger
	detector   Detector
	compositor *swapper.Compositor
	fallback   viewport.Size

	source gocv.Mat
	target gocv.Mat
	result gocv.Mat

	sourceFaces []detector.Face
	targetFaces []detector.Face
	selected    *selection.Set
}

// New creates an empty session
func New(det Detector, comp *swapper.Compositor, opts Options) *Session {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fallback := opts.Fallback
	if !fallback.Realized() {
		fallback = viewport.FallbackSize
	}
	if comp == nil {
		comp = swapper.NewCompositor(swapper.DefaultOptions())
	}
	return &Session{
		id:         id,
		log:        logger.With("session", id),
		detector:   det,
		compositor: comp,
		fallback:   fallback,
		source:     gocv.NewMat(),
		target:     gocv.NewMat(),
		result:     gocv.NewMat(),
		selected:   selection.New(),
	}
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// LoadSource replaces the source raster with a copy of img and clears the
// source faces
func (s *Session) LoadSource(img gocv.Mat) error {
	return s.load(Source, img)
}

// LoadTarget replaces the target raster with a copy of img and clears the
// target faces and the selection
func (s *Session) LoadTarget(img gocv.Mat) error {
	return s.load(Target, img)
}

// OpenSource loads the source raster from an image file
func (s *Session) OpenSource(path string) error {
	return s.open(Source, path)
}

// OpenTarget loads the target raster from an image file
func (s *Session) OpenTarget(path string) error {
	return s.open(Target, path)
}

func (s *Session) open(side Side, path string) error {
	img, err := imageio.Load(path)
	if err != nil {
		return err
	}
	defer img.Close()
	return s.load(side, img)
}

func (s *Session) load(side Side, img gocv.Mat) error {
	if img.Empty() {
		return fmt.Errorf("%w: empty %s raster", imageio.ErrUnreadable, side)
	}
	if img.Channels() != 3 || img.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("%w: %s raster must be 8-bit 3-channel", imageio.ErrUnreadable, side)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(side, img.Clone())
	s.log.Info("image loaded", "side", side, "width", img.Cols(), "height", img.Rows())
	return nil
}

// replace swaps in a new raster for side and clears what depended on the
// old one. Caller holds s.mu.
func (s *Session) replace(side Side, img gocv.Mat) {
	switch side {
	case Source:
		s.source.Close()
		s.source = img
		s.sourceFaces = nil
	case Target:
		s.target.Close()
		s.target = img
		s.targetFaces = nil
		s.selected.Clear()
	}
}

// CropSource crops the source raster to a rectangle drawn on a display
// surface of the given size
func (s *Session) CropSource(r viewport.Rect, surface viewport.Size) error {
	return s.crop(Source, r, surface)
}

// CropTarget crops the target raster to a rectangle drawn on a display
// surface of the given size
func (s *Session) CropTarget(r viewport.Rect, surface viewport.Size) error {
	return s.crop(Target, r, surface)
}

func (s *Session) crop(side Side, r viewport.Rect, surface viewport.Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img := s.raster(side)
	if img.Empty() {
		return fmt.Errorf("no %s image to crop", side)
	}

	m := viewport.NewWithFallback(img.Cols(), img.Rows(), surface, s.fallback)
	box, err := m.RectToImage(r)
	if err != nil {
		return fmt.Errorf("crop %s: %w", side, err)
	}

	roi := img.Region(box)
	cropped := roi.Clone()
	roi.Close()

	s.replace(side, cropped)
	s.log.Info("image cropped", "side", side, "bbox", box)
	return nil
}

func (s *Session) raster(side Side) gocv.Mat {
	if side == Source {
		return s.source
	}
	return s.target
}

// DetectResult summarizes a detection pass
type DetectResult struct {
	SourceFaces int
	TargetFaces int
}

// Warnings lists the sides where no face was found. Finding no faces is
// not an error.
func (r DetectResult) Warnings() []string {
	var w []string
	if r.SourceFaces == 0 {
		w = append(w, "no faces detected in source image")
	}
	if r.TargetFaces == 0 {
		w = append(w, "no faces detected in target image")
	}
	return w
}

// Detect runs the detector over both rasters, replacing both face lists and
// clearing the selection. On error nothing changes.
func (s *Session) Detect() (DetectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source.Empty() {
		return DetectResult{}, swapper.ErrNoSourceImage
	}
	if s.target.Empty() {
		return DetectResult{}, swapper.ErrNoTargetImage
	}
	if s.detector == nil {
		return DetectResult{}, fmt.Errorf("%w: no detector configured", detector.ErrDetection)
	}

	start := time.Now()
	src, err := s.detector.Detect(s.source)
	if err != nil {
		return DetectResult{}, fmt.Errorf("source: %w", err)
	}
	dst, err := s.detector.Detect(s.target)
	if err != nil {
		return DetectResult{}, fmt.Errorf("target: %w", err)
	}

	s.sourceFaces = src
	s.targetFaces = dst
	s.selected.Clear()

	res := DetectResult{SourceFaces: len(src), TargetFaces: len(dst)}
	s.log.Info("faces detected",
		"source_faces", res.SourceFaces,
		"target_faces", res.TargetFaces,
		"elapsed", time.Since(start))
	for _, w := range res.Warnings() {
		s.log.Warn(w)
	}
	return res, nil
}

// ToggleAt toggles the target face under a click on a display surface of
// the given size. It returns the hit face index or -1 on a miss.
func (s *Session) ToggleAt(dx, dy float64, surface viewport.Size) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.target.Empty() {
		return -1, false
	}
	m := viewport.NewWithFallback(s.target.Cols(), s.target.Rows(), surface, s.fallback)
	p := m.ToImagePoint(dx, dy)
	return s.toggle(p)
}

// ToggleImage toggles the target face containing the image point (x, y)
func (s *Session) ToggleImage(x, y int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toggle(image.Pt(x, y))
}

func (s *Session) toggle(p image.Point) (int, bool) {
	i, selected := selection.Toggle(s.selected, s.targetFaces, p.X, p.Y)
	if i >= 0 {
		s.log.Debug("face toggled", "index", i, "selected", selected)
	}
	return i, selected
}

// ToggleIndex toggles target face i directly
func (s *Session) ToggleIndex(i int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.targetFaces) {
		return false, fmt.Errorf("target face %d out of range (%d detected)", i+1, len(s.targetFaces))
	}
	selected := s.selected.ToggleIndex(i)
	s.log.Debug("face toggled", "index", i, "selected", selected)
	return selected, nil
}

// SelectAll selects every detected target face not already selected
func (s *Session) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.targetFaces {
		if !s.selected.Contains(i) {
			s.selected.ToggleIndex(i)
		}
	}
}

// CompositeOption adjusts a single Composite call
type CompositeOption func(*swapper.Options)

// WithProgress reports per-face progress for one Composite call
func WithProgress(fn func(done, total int)) CompositeOption {
	return func(o *swapper.Options) {
		o.Progress = fn
	}
}

// Composite blends the first source face over every selected target face.
// On success the result becomes the new target raster, so composites can be
// chained. On a *swapper.CompositeError the partial result is kept as the
// result raster and the target is left unchanged. Precondition failures
// change nothing.
func (s *Session) Composite(opts ...CompositeOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	comp := s.compositor
	if len(opts) > 0 {
		o := comp.Options()
		for _, opt := range opts {
			opt(&o)
		}
		comp = swapper.NewCompositor(o)
	}

	start := time.Now()
	out, err := comp.Composite(swapper.Request{
		Source:      s.source,
		SourceFaces: swapper.Boxes(s.sourceFaces),
		Target:      s.target,
		TargetFaces: swapper.Boxes(s.targetFaces),
		Selected:    s.selected.Indices(),
	})

	var cerr *swapper.CompositeError
	switch {
	case err == nil:
		s.result.Close()
		s.result = out
		s.target.Close()
		s.target = out.Clone()
		s.log.Info("faces swapped",
			"faces", len(s.selected.Valid(len(s.targetFaces))),
			"selected", s.selected.Len(),
			"elapsed", time.Since(start))
		return nil
	case errors.As(err, &cerr):
		s.result.Close()
		s.result = out
		s.log.Error("face swap stopped", "index", cerr.Index, "bbox", cerr.Box, "err", cerr.Err)
		return err
	default:
		out.Close()
		return err
	}
}

// Save writes the result raster to path, format chosen by extension
func (s *Session) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result.Empty() {
		return ErrNoResult
	}
	if err := imageio.Save(path, s.result); err != nil {
		return err
	}
	s.log.Info("result saved", "path", path)
	return nil
}

// Result returns a copy of the result raster, empty when there is none.
// The caller must close it.
func (s *Session) Result() gocv.Mat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result.Clone()
}

// Image returns a copy of the source or target raster. The caller must
// close it.
func (s *Session) Image(side Side) gocv.Mat {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.raster(side)
	return img.Clone()
}

// Snapshot is a read-only view of the session for renderers
type Snapshot struct {
	ID          string
	SourceSize  image.Point
	TargetSize  image.Point
	SourceFaces []detector.Face
	TargetFaces []detector.Face
	Selected    []int
	HasResult   bool
}

// Snapshot copies the current face lists and selection
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:          s.id,
		SourceSize:  image.Pt(s.source.Cols(), s.source.Rows()),
		TargetSize:  image.Pt(s.target.Cols(), s.target.Rows()),
		SourceFaces: append([]detector.Face(nil), s.sourceFaces...),
		TargetFaces: append([]detector.Face(nil), s.targetFaces...),
		Selected:    s.selected.Indices(),
		HasResult:   !s.result.Empty(),
	}
}

// Close releases all rasters
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, m := range []*gocv.Mat{&s.source, &s.target, &s.result} {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.sourceFaces = nil
	s.targetFaces = nil
	s.selected.Clear()
	return errors.Join(errs...)
}
