package detector

import (
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"
	"gocv.io/x/gocv"
)

// PigoConfig configures the pure Go pigo detector
type PigoConfig struct {
	CascadePath string
	MinSize     int
	MaxSize     int
	MinQuality  float32
	IoU         float64
}

// Pigo detects faces with a pigo pixel-intensity-comparison cascade
type Pigo struct {
	classifier *pigo.Pigo
	cfg        PigoConfig
}

// NewPigo unpacks the cascade file at cfg.CascadePath
func NewPigo(cfg PigoConfig) (*Pigo, error) {
	data, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade file: %w", err)
	}

	if cfg.MinSize <= 0 {
		cfg.MinSize = 20
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 2000
	}
	if cfg.IoU <= 0 {
		cfg.IoU = 0.2
	}
	return &Pigo{classifier: classifier, cfg: cfg}, nil
}

// Detect finds faces in an RGB image
func (p *Pigo) Detect(img gocv.Mat) ([]Detection, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorRGBToGray)

	params := pigo.CascadeParams{
		MinSize:     p.cfg.MinSize,
		MaxSize:     p.cfg.MaxSize,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: gray.ToBytes(),
			Rows:   gray.Rows(),
			Cols:   gray.Cols(),
			Dim:    gray.Cols(),
		},
	}

	raw := p.classifier.RunCascade(params, 0)
	raw = p.classifier.ClusterDetections(raw, p.cfg.IoU)

	dets := make([]Detection, 0, len(raw))
	for _, d := range raw {
		if d.Q < p.cfg.MinQuality {
			continue
		}
		half := float32(d.Scale) / 2
		dets = append(dets, Detection{
			BoundingBox: BoundingBox{
				X1: float32(d.Col) - half,
				Y1: float32(d.Row) - half,
				X2: float32(d.Col) + half,
				Y2: float32(d.Row) + half,
			},
			Score: d.Q,
		})
	}
	return dets, nil
}

// Close is a no-op; pigo holds no native resources
func (p *Pigo) Close() error {
	return nil
}
