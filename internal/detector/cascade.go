package detector

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Cascade detects faces with an OpenCV Haar cascade. It reports no
// landmarks and a constant score of 1.
type Cascade struct {
	classifier gocv.CascadeClassifier
	mu         sync.Mutex
}

// NewCascade loads a Haar cascade XML file
func NewCascade(path string) (*Cascade, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade file %s", path)
	}
	return &Cascade{classifier: classifier}, nil
}

// Detect finds faces in an RGB image
func (c *Cascade) Detect(img gocv.Mat) ([]Detection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorRGBToGray)

	rects := c.classifier.DetectMultiScale(gray)
	dets := make([]Detection, len(rects))
	for i, r := range rects {
		dets[i] = Detection{
			BoundingBox: BoundingBox{
				X1: float32(r.Min.X),
				Y1: float32(r.Min.Y),
				X2: float32(r.Max.X),
				Y2: float32(r.Max.Y),
			},
			Score: 1,
		}
	}
	return dets, nil
}

// Close releases the classifier
func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.Close()
}
