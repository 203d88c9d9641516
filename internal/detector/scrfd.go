package detector

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/inference"
)

// SCRFDConfig configures the SCRFD ONNX detector
type SCRFDConfig struct {
	ModelPath     string
	InputSize     int
	ConfThreshold float32
	NMSThreshold  float32
	UseCoreML     bool
	Logger        *slog.Logger
}

// SCRFD implements the SCRFD face detector on ONNX Runtime. Input rasters
// are RGB, which is the channel order the model expects.
type SCRFD struct {
	session        *inference.Session
	inputSize      int
	confThreshold  float32
	nmsThreshold   float32
	featureStrides []int
	numAnchors     int
}

// NewSCRFD creates a new SCRFD detector. inference.Initialize must have
// been called.
func NewSCRFD(cfg SCRFDConfig) (*SCRFD, error) {
	if cfg.InputSize <= 0 || cfg.InputSize%32 != 0 {
		return nil, fmt.Errorf("SCRFD input size must be a positive multiple of 32, got %d", cfg.InputSize)
	}

	// 1 input, 3 levels x (score, bbox, kps)
	inputNames := []string{"input.1"}
	outputNames := []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}

	// Exported models often carry numeric tensor names; their declared
	// order is still score, bbox, kps per stride.
	if ins, outs, err := ort.GetInputOutputInfo(cfg.ModelPath); err == nil && len(ins) == 1 && len(outs) == 9 {
		inputNames = []string{ins[0].Name}
		for i, o := range outs {
			outputNames[i] = o.Name
		}
	}

	session, err := inference.NewSession(cfg.ModelPath, inputNames, outputNames, inference.SessionOptions{
		UseCoreML: cfg.UseCoreML,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("SCRFD detector ready",
		"model", session.ModelPath(),
		"input", inputNames[0],
		"input_size", cfg.InputSize)

	return &SCRFD{
		session:        session,
		inputSize:      cfg.InputSize,
		confThreshold:  cfg.ConfThreshold,
		nmsThreshold:   cfg.NMSThreshold,
		featureStrides: []int{8, 16, 32},
		numAnchors:     2,
	}, nil
}

// Detect finds faces in an RGB image
func (s *SCRFD) Detect(img gocv.Mat) ([]Detection, error) {
	origWidth, origHeight := img.Cols(), img.Rows()

	blob, scale, err := s.preprocess(img)
	if err != nil {
		return nil, err
	}

	inputTensor, err := inference.CreateTensor([]int64{1, 3, int64(s.inputSize), int64(s.inputSize)}, blob)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// Outputs are allocated by ONNX Runtime since exported models differ in
	// whether they keep the batch dimension.
	outputs := make([]ort.Value, 9)
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %d is not a float32 tensor", i)
		}
		outputTensors[i] = t
	}
	if err := s.checkOutputs(outputTensors); err != nil {
		return nil, err
	}

	dets := s.postprocess(outputTensors, scale, origWidth, origHeight)
	return nms(dets, s.nmsThreshold), nil
}

// preprocess letterboxes the image into the top-left corner of an
// inputSize square and normalizes it to NCHW float32: (x - 127.5) / 128.
func (s *SCRFD) preprocess(img gocv.Mat) ([]float32, float32, error) {
	scale := float32(s.inputSize) / float32(max(img.Rows(), img.Cols()))
	newWidth := max(1, int(float32(img.Cols())*scale))
	newHeight := max(1, int(float32(img.Rows())*scale))

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMatWithSize(s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	defer padded.Close()
	padded.SetTo(gocv.NewScalar(0, 0, 0, 0))

	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()

	normalized := gocv.NewMat()
	defer normalized.Close()
	padded.ConvertToWithParams(&normalized, gocv.MatTypeCV32FC3, 1.0/128.0, -127.5/128.0)

	blob := gocv.BlobFromImage(normalized, 1.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read input blob: %w", err)
	}
	return append([]float32(nil), data...), scale, nil
}

// checkOutputs verifies each level has one score, four box distances and
// ten keypoint offsets per anchor
func (s *SCRFD) checkOutputs(outputs []*ort.Tensor[float32]) error {
	widths := []int{1, 4, 10}
	for group, width := range widths {
		for level, stride := range s.featureStrides {
			fm := s.inputSize / stride
			want := fm * fm * s.numAnchors * width
			if got := len(outputs[group*3+level].GetData()); got != want {
				return fmt.Errorf("output %d has %d values, want %d", group*3+level, got, want)
			}
		}
	}
	return nil
}

// postprocess decodes the distance-to-edge outputs of each stride level
func (s *SCRFD) postprocess(outputs []*ort.Tensor[float32], scale float32, origWidth, origHeight int) []Detection {
	var dets []Detection

	for level, stride := range s.featureStrides {
		fm := s.inputSize / stride
		st := float32(stride)

		scores := outputs[level].GetData()
		boxes := outputs[level+3].GetData()
		kps := outputs[level+6].GetData()

		anchor := 0
		for y := 0; y < fm; y++ {
			for x := 0; x < fm; x++ {
				for a := 0; a < s.numAnchors; a++ {
					score := scores[anchor]
					if score > s.confThreshold {
						cx := float32(x) * st
						cy := float32(y) * st

						b := boxes[anchor*4 : anchor*4+4]
						box := BoundingBox{
							X1: clamp((cx-b[0]*st)/scale, 0, float32(origWidth)),
							Y1: clamp((cy-b[1]*st)/scale, 0, float32(origHeight)),
							X2: clamp((cx+b[2]*st)/scale, 0, float32(origWidth)),
							Y2: clamp((cy+b[3]*st)/scale, 0, float32(origHeight)),
						}

						k := kps[anchor*10 : anchor*10+10]
						pt := func(i int) Point {
							return Point{X: (cx + k[i*2]*st) / scale, Y: (cy + k[i*2+1]*st) / scale}
						}

						dets = append(dets, Detection{
							BoundingBox: box,
							Landmarks: Landmarks{
								LeftEye:    pt(0),
								RightEye:   pt(1),
								Nose:       pt(2),
								LeftMouth:  pt(3),
								RightMouth: pt(4),
							},
							HasLandmarks: true,
							Score:        score,
						})
					}
					anchor++
				}
			}
		}
	}

	return dets
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func clamp(x, lo, hi float32) float32 {
	return float32(math.Max(float64(lo), math.Min(float64(hi), float64(x))))
}
