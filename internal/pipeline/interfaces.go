package pipeline

import (
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
)

// Backend names a face detection backend
type Backend string

const (
	BackendSCRFD  Backend = "scrfd"
	BackendYuNet  Backend = "yunet"
	BackendHaar   Backend = "haar"
	BackendPigo   Backend = "pigo"
	BackendRemote Backend = "remote"
)

// Backends lists every supported backend
var Backends = []Backend{BackendSCRFD, BackendYuNet, BackendHaar, BackendPigo, BackendRemote}

// FaceDetector interface for face detection
type FaceDetector interface {
	Detect(img gocv.Mat) ([]detector.Face, error)
	Close() error
}
