package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNetConfig configures the OpenCV YuNet detector
type YuNetConfig struct {
	ModelPath     string
	ConfThreshold float32
	NMSThreshold  float32
	TopK          int
}

// YuNet uses OpenCV's FaceDetectorYN
type YuNet struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex
}

// NewYuNet loads a YuNet ONNX model
func NewYuNet(cfg YuNetConfig) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("YuNet model not found: %w", err)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5000
	}

	// input size is replaced per image
	det := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(320, 320),
		cfg.ConfThreshold,
		cfg.NMSThreshold,
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{detector: det}, nil
}

// Detect finds faces in an RGB image
func (y *YuNet) Detect(img gocv.Mat) ([]Detection, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(img, &bgr, gocv.ColorRGBToBGR)

	y.detector.SetInputSize(image.Pt(bgr.Cols(), bgr.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	y.detector.Detect(bgr, &faces)

	// rows: x, y, w, h, 5 landmark pairs, score
	dets := make([]Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		at := func(c int) float32 { return faces.GetFloatAt(r, c) }
		pt := func(i int) Point { return Point{X: at(4 + i*2), Y: at(5 + i*2)} }

		dets = append(dets, Detection{
			BoundingBox: BoundingBox{X1: at(0), Y1: at(1), X2: at(0) + at(2), Y2: at(1) + at(3)},
			Landmarks: Landmarks{
				LeftEye:    pt(0),
				RightEye:   pt(1),
				Nose:       pt(2),
				LeftMouth:  pt(3),
				RightMouth: pt(4),
			},
			HasLandmarks: true,
			Score:        at(14),
		})
	}
	return dets, nil
}

// Close releases the detector
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.detector.Close()
	return nil
}
