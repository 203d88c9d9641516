package detector

import (
	"fmt"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gocv.io/x/gocv"
)

// RemoteRequest is sent to a detection service. Data is RGB uint8,
// row-major, shape (H, W, 3).
type RemoteRequest struct {
	Height int    `msgpack:"h"`
	Width  int    `msgpack:"w"`
	Data   []byte `msgpack:"d"`
}

// RemoteDetection is one face reported by the service
type RemoteDetection struct {
	X          float32   `msgpack:"x"`
	Y          float32   `msgpack:"y"`
	Width      float32   `msgpack:"w"`
	Height     float32   `msgpack:"h"`
	Confidence float32   `msgpack:"c"`
	Landmarks  []float32 `msgpack:"l"` // [x1,y1, ..., x5,y5], optional
}

// RemoteResponse is received from the service
type RemoteResponse struct {
	Detections  []RemoteDetection `msgpack:"detections"`
	Error       string            `msgpack:"error,omitempty"`
	InferenceMs float32           `msgpack:"inference_ms"`
}

// Remote delegates detection to a service on a Unix socket speaking
// msgpack: one request and one response per connection.
type Remote struct {
	socketPath string
	timeout    time.Duration
}

// NewRemote creates a client for the service at socketPath
func NewRemote(socketPath string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{socketPath: socketPath, timeout: timeout}
}

// Detect sends the RGB image to the service
func (r *Remote) Detect(img gocv.Mat) ([]Detection, error) {
	src := img
	if !img.IsContinuous() {
		src = img.Clone()
		defer src.Close()
	}

	conn, err := net.DialTimeout("unix", r.socketPath, r.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to detection service: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(r.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	req := RemoteRequest{Height: src.Rows(), Width: src.Cols(), Data: src.ToBytes()}
	if err := msgpack.NewEncoder(conn).Encode(&req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}

	var resp RemoteResponse
	if err := msgpack.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("detection service: %s", resp.Error)
	}

	dets := make([]Detection, len(resp.Detections))
	for i, d := range resp.Detections {
		dets[i] = Detection{
			BoundingBox: BoundingBox{X1: d.X, Y1: d.Y, X2: d.X + d.Width, Y2: d.Y + d.Height},
			Score:       d.Confidence,
		}
		if len(d.Landmarks) >= 10 {
			pt := func(j int) Point { return Point{X: d.Landmarks[j*2], Y: d.Landmarks[j*2+1]} }
			dets[i].Landmarks = Landmarks{
				LeftEye:    pt(0),
				RightEye:   pt(1),
				Nose:       pt(2),
				LeftMouth:  pt(3),
				RightMouth: pt(4),
			}
			dets[i].HasLandmarks = true
		}
	}
	return dets, nil
}

// Close is a no-op; connections are per request
func (r *Remote) Close() error {
	return nil
}
