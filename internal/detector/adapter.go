package detector

import (
	"fmt"
	"image"
	"log/slog"
	"time"

	"gocv.io/x/gocv"
)

// Adapter wraps a Backend and turns its raw detections into Faces: boxes
// are truncated to whole pixels, clamped to the image and dropped when
// empty. Detector order is preserved.
type Adapter struct {
	name    string
	backend Backend
	log     *slog.Logger
}

// NewAdapter wraps backend under the given name (used in logs and errors)
func NewAdapter(name string, backend Backend, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		name:    name,
		backend: backend,
		log:     logger.With("detector", name),
	}
}

// Name returns the backend name
func (a *Adapter) Name() string {
	return a.name
}

// Detect runs the backend on img. An empty result is not an error.
func (a *Adapter) Detect(img gocv.Mat) ([]Face, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrDetection)
	}

	start := time.Now()
	dets, err := a.backend.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrDetection, a.name, err)
	}

	faces := Normalize(dets, img.Cols(), img.Rows())
	a.log.Debug("detection finished",
		"raw", len(dets),
		"faces", len(faces),
		"elapsed", time.Since(start))
	return faces, nil
}

// Close releases the backend
func (a *Adapter) Close() error {
	return a.backend.Close()
}

// Normalize converts raw detections on a width x height image to Faces
func Normalize(dets []Detection, width, height int) []Face {
	bounds := image.Rect(0, 0, width, height)
	faces := make([]Face, 0, len(dets))
	for _, d := range dets {
		box := d.BoundingBox.Rect(bounds)
		if box.Empty() {
			continue
		}
		faces = append(faces, Face{
			Box:          box,
			Landmarks:    d.Landmarks,
			HasLandmarks: d.HasLandmarks,
			Score:        d.Score,
		})
	}
	return faces
}
