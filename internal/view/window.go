package view

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// cv::EVENT_LBUTTONDOWN
const eventLButtonDown = 1

// Window manages the preview display
type Window struct {
	window *gocv.Window
	name   string
	status string
	frame  gocv.Mat // last frame shown, BGR
}

// NewWindow creates a new preview window of the given size
func NewWindow(name string, width, height int) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(width, height)
	window.MoveWindow(100, 100)
	return &Window{
		window: window,
		name:   name,
		frame:  gocv.NewMat(),
	}
}

// SetStatus sets a line of text drawn at the bottom of every frame
func (w *Window) SetStatus(status string) {
	w.status = status
}

// OnClick calls fn with the frame coordinates of every left button press.
// Callbacks fire from inside WaitKey.
func (w *Window) OnClick(fn func(x, y int)) {
	w.window.SetMouseHandler(func(event, x, y, flags int, _ interface{}) {
		if event == eventLButtonDown {
			fn(x, y)
		}
	}, nil)
}

// Show displays an RGB frame
func (w *Window) Show(frame gocv.Mat) error {
	bgr := gocv.NewMat()
	if err := gocv.CvtColor(frame, &bgr, gocv.ColorRGBToBGR); err != nil {
		bgr.Close()
		return fmt.Errorf("convert frame: %w", err)
	}

	if w.status != "" {
		if err := gocv.PutText(&bgr, w.status, image.Pt(10, bgr.Rows()-10),
			gocv.FontHersheyPlain, 1.2, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 1); err != nil {
			bgr.Close()
			return fmt.Errorf("draw status: %w", err)
		}
	}

	if err := w.window.IMShow(bgr); err != nil {
		bgr.Close()
		return fmt.Errorf("show frame: %w", err)
	}
	w.frame.Close()
	w.frame = bgr
	return nil
}

// SelectROI lets the user drag a rectangle over the last frame shown. It
// returns an empty rectangle when the selection is cancelled or nothing
// has been shown yet.
func (w *Window) SelectROI() image.Rectangle {
	if w.frame.Empty() {
		return image.Rectangle{}
	}
	return w.window.SelectROI(w.frame)
}

// WaitKey waits for a key press and returns its low byte, or -1
func (w *Window) WaitKey(delayMs int) int {
	key := w.window.WaitKey(delayMs)
	if key < 0 {
		return -1
	}
	return key & 0xFF
}

// Close closes the window
func (w *Window) Close() error {
	w.frame.Close()
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
