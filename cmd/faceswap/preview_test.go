package main

import (
	"image"
	"strings"
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/session"
	"github.com/dudu/faceswap/internal/viewport"
)

type stubDetector map[int][]detector.Face

func (d stubDetector) Detect(img gocv.Mat) ([]detector.Face, error) {
	return d[img.Cols()], nil
}

// previewSession holds a 150x150 source with one face and a 300x300 target
// with two, detected
func previewSession(t *testing.T) *session.Session {
	t.Helper()
	det := stubDetector{
		150: {{Box: image.Rect(10, 10, 110, 110), Score: 1}},
		300: {
			{Box: image.Rect(0, 0, 50, 50), Score: 1},
			{Box: image.Rect(200, 200, 260, 260), Score: 1},
		},
	}
	sess := session.New(det, nil, session.Options{})
	t.Cleanup(func() { sess.Close() })

	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(200, 100, 50, 0), 150, 150, gocv.MatTypeCV8UC3)
	defer src.Close()
	dst := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 300, 300, gocv.MatTypeCV8UC3)
	defer dst.Close()
	if err := sess.LoadSource(src); err != nil {
		t.Fatal(err)
	}
	if err := sess.LoadTarget(dst); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Detect(); err != nil {
		t.Fatal(err)
	}
	return sess
}

// Each half of an 800x400 frame is 400x400; the 300x300 target is scaled
// by 4/3 with no letterbox offset.
var previewSurface = viewport.Size{W: 800, H: 400}

func TestClickFace(t *testing.T) {
	sess := previewSession(t)

	// (700, 300) is (300, 300) in the target half, image point (225, 225)
	if got := clickFace(sess, previewSurface, image.Pt(700, 300)); got != "Face 2 selected" {
		t.Errorf("click on face 2 = %q", got)
	}
	if sel := sess.Snapshot().Selected; len(sel) != 1 || sel[0] != 1 {
		t.Errorf("selected = %v, want [1]", sel)
	}
	if got := clickFace(sess, previewSurface, image.Pt(700, 300)); got != "Face 2 deselected" {
		t.Errorf("second click = %q", got)
	}

	if got := clickFace(sess, previewSurface, image.Pt(780, 10)); got != "No face there" {
		t.Errorf("click on background = %q", got)
	}
	if got := clickFace(sess, previewSurface, image.Pt(100, 100)); !strings.Contains(got, "target") {
		t.Errorf("click on source = %q", got)
	}
	if sel := sess.Snapshot().Selected; len(sel) != 0 {
		t.Errorf("selected = %v, want none", sel)
	}
}

func TestCropSelection(t *testing.T) {
	sess := previewSession(t)

	if got := cropSelection(sess, previewSurface, image.Rectangle{}); got != "Crop cancelled" {
		t.Errorf("cancelled crop = %q", got)
	}
	if got := cropSelection(sess, previewSurface, image.Rect(300, 0, 500, 100)); !strings.HasPrefix(got, "Error") {
		t.Errorf("crop across both halves = %q", got)
	}

	// The 150x150 source is scaled by 8/3; 200 display px is 75 image px
	got := cropSelection(sess, previewSurface, image.Rect(0, 0, 200, 200))
	if !strings.HasPrefix(got, "Cropped source") {
		t.Fatalf("crop source = %q", got)
	}
	snap := sess.Snapshot()
	if snap.SourceSize != image.Pt(75, 75) {
		t.Errorf("source size = %v, want 75x75", snap.SourceSize)
	}
	if snap.TargetSize != image.Pt(300, 300) {
		t.Errorf("target size = %v, want unchanged", snap.TargetSize)
	}

	// (400, 0)-(550, 150) is (0, 0)-(150, 150) in the target half
	if got := cropSelection(sess, previewSurface, image.Rect(400, 0, 550, 150)); !strings.HasPrefix(got, "Cropped target") {
		t.Fatalf("crop target = %q", got)
	}
	if size := sess.Snapshot().TargetSize; size != image.Pt(112, 112) {
		t.Errorf("target size = %v, want 112x112", size)
	}
}

func TestDetectFaces(t *testing.T) {
	sess := previewSession(t)

	if got := detectFaces(sess); got != "Detected 1 source and 2 target faces" {
		t.Errorf("detect = %q", got)
	}

	if got := cropSelection(sess, previewSurface, image.Rect(0, 0, 200, 200)); !strings.HasPrefix(got, "Cropped") {
		t.Fatalf("crop = %q", got)
	}
	got := detectFaces(sess)
	if !strings.HasPrefix(got, "Warning") || !strings.Contains(got, "source") {
		t.Errorf("detect after crop = %q", got)
	}
}
