package session

import (
	"bytes"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/swapper"
	"github.com/dudu/faceswap/internal/viewport"
)

// fakeDetector returns canned faces keyed by raster width
type fakeDetector struct {
	faces map[int][]detector.Face
	err   error
	calls int
}

func (f *fakeDetector) Detect(img gocv.Mat) ([]detector.Face, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.faces[img.Cols()], nil
}

func faces(rects ...image.Rectangle) []detector.Face {
	out := make([]detector.Face, len(rects))
	for i, r := range rects {
		out[i] = detector.Face{Box: r, Score: 1}
	}
	return out
}

func filled(w, h int, c gocv.Scalar) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(c, h, w, gocv.MatTypeCV8UC3)
}

func regionBytes(m gocv.Mat, r image.Rectangle) []byte {
	roi := m.Region(r)
	defer roi.Close()
	c := roi.Clone()
	defer c.Close()
	return c.ToBytes()
}

// newLoaded returns a session with a 150x150 source holding one face and a
// 300x300 target holding two
func newLoaded(t *testing.T) (*Session, *fakeDetector) {
	t.Helper()
	det := &fakeDetector{faces: map[int][]detector.Face{
		150: faces(image.Rect(10, 10, 110, 110)),
		300: faces(image.Rect(0, 0, 50, 50), image.Rect(200, 200, 260, 260)),
	}}
	s := New(det, nil, Options{})
	t.Cleanup(func() { s.Close() })

	src := filled(150, 150, gocv.NewScalar(200, 100, 50, 0))
	defer src.Close()
	dst := filled(300, 300, gocv.NewScalar(10, 20, 30, 0))
	defer dst.Close()

	if err := s.LoadSource(src); err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if err := s.LoadTarget(dst); err != nil {
		t.Fatalf("LoadTarget: %v", err)
	}
	return s, det
}

func TestEndToEnd(t *testing.T) {
	s, _ := newLoaded(t)

	original := s.Image(Target)
	defer original.Close()

	res, err := s.Detect()
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.SourceFaces != 1 || res.TargetFaces != 2 {
		t.Fatalf("detected %d/%d faces, want 1/2", res.SourceFaces, res.TargetFaces)
	}
	if w := res.Warnings(); len(w) != 0 {
		t.Errorf("unexpected warnings %v", w)
	}

	if selected, err := s.ToggleIndex(1); err != nil || !selected {
		t.Fatalf("ToggleIndex(1) = %v, %v", selected, err)
	}
	if err := s.Composite(); err != nil {
		t.Fatalf("Composite: %v", err)
	}

	result := s.Result()
	defer result.Close()
	if result.Cols() != 300 || result.Rows() != 300 {
		t.Fatalf("result size = %dx%d", result.Cols(), result.Rows())
	}

	untouched := image.Rect(0, 0, 50, 50)
	if !bytes.Equal(regionBytes(result, untouched), regionBytes(original, untouched)) {
		t.Error("unselected face region changed")
	}

	swapped := image.Rect(200, 200, 260, 260)
	if bytes.Equal(regionBytes(result, swapped), regionBytes(original, swapped)) {
		t.Error("selected face region unchanged")
	}

	// Outside the box and the feather radius nothing moves
	outside := image.Rect(100, 100, 180, 180)
	if !bytes.Equal(regionBytes(result, outside), regionBytes(original, outside)) {
		t.Error("pixels outside the selected box changed")
	}

	// The result becomes the new target
	target := s.Image(Target)
	defer target.Close()
	if !bytes.Equal(target.ToBytes(), result.ToBytes()) {
		t.Error("target not replaced by result")
	}

	snap := s.Snapshot()
	if !snap.HasResult || len(snap.Selected) != 1 || snap.Selected[0] != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	path := filepath.Join(t.TempDir(), "result.png")
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestLoadTargetResetsFacesAndSelection(t *testing.T) {
	s, _ := newLoaded(t)
	if _, err := s.Detect(); err != nil {
		t.Fatal(err)
	}
	s.SelectAll()

	img := filled(300, 300, gocv.NewScalar(1, 2, 3, 0))
	defer img.Close()
	if err := s.LoadTarget(img); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if len(snap.TargetFaces) != 0 || len(snap.Selected) != 0 {
		t.Errorf("target faces %d, selected %v after load", len(snap.TargetFaces), snap.Selected)
	}
	if len(snap.SourceFaces) != 1 {
		t.Errorf("source faces = %d, want 1 kept", len(snap.SourceFaces))
	}
}

func TestLoadSourceKeepsSelection(t *testing.T) {
	s, _ := newLoaded(t)
	if _, err := s.Detect(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ToggleIndex(0); err != nil {
		t.Fatal(err)
	}

	img := filled(150, 150, gocv.NewScalar(0, 0, 0, 0))
	defer img.Close()
	if err := s.LoadSource(img); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if len(snap.SourceFaces) != 0 {
		t.Errorf("source faces = %d after load, want 0", len(snap.SourceFaces))
	}
	if len(snap.Selected) != 1 || len(snap.TargetFaces) != 2 {
		t.Errorf("target state changed by source load: %+v", snap)
	}
}

func TestLoadRejectsEmptyRaster(t *testing.T) {
	s, _ := newLoaded(t)
	empty := gocv.NewMat()
	defer empty.Close()

	if err := s.LoadTarget(empty); err == nil {
		t.Fatal("expected error loading empty raster")
	}
	if snap := s.Snapshot(); snap.TargetSize != image.Pt(300, 300) {
		t.Errorf("target size = %v, want unchanged 300x300", snap.TargetSize)
	}
}

func TestCompositeWithoutSelection(t *testing.T) {
	s, _ := newLoaded(t)
	if _, err := s.Detect(); err != nil {
		t.Fatal(err)
	}

	if err := s.Composite(); !errors.Is(err, swapper.ErrNoSelection) {
		t.Fatalf("err = %v, want ErrNoSelection", err)
	}
	if s.Snapshot().HasResult {
		t.Error("result produced without selection")
	}

	// After a successful composite an empty selection leaves the result alone
	if _, err := s.ToggleIndex(0); err != nil {
		t.Fatal(err)
	}
	if err := s.Composite(); err != nil {
		t.Fatal(err)
	}
	before := s.Result()
	defer before.Close()

	if _, err := s.ToggleIndex(0); err != nil {
		t.Fatal(err)
	}
	if err := s.Composite(); !errors.Is(err, swapper.ErrNoSelection) {
		t.Fatalf("err = %v, want ErrNoSelection", err)
	}
	after := s.Result()
	defer after.Close()
	if !bytes.Equal(before.ToBytes(), after.ToBytes()) {
		t.Error("result changed by rejected composite")
	}
}

func TestCompositePreconditions(t *testing.T) {
	det := &fakeDetector{faces: map[int][]detector.Face{}}
	s := New(det, nil, Options{})
	defer s.Close()

	if err := s.Composite(); !errors.Is(err, swapper.ErrNoSourceFaces) {
		t.Errorf("err = %v, want ErrNoSourceFaces", err)
	}
	if _, err := s.Detect(); !errors.Is(err, swapper.ErrNoSourceImage) {
		t.Errorf("Detect err = %v, want ErrNoSourceImage", err)
	}

	src := filled(150, 150, gocv.NewScalar(0, 0, 0, 0))
	defer src.Close()
	if err := s.LoadSource(src); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Detect(); !errors.Is(err, swapper.ErrNoTargetImage) {
		t.Errorf("Detect err = %v, want ErrNoTargetImage", err)
	}
	if det.calls != 0 {
		t.Errorf("detector called %d times before both images loaded", det.calls)
	}
}

func TestDetectWarningsAndErrors(t *testing.T) {
	s, det := newLoaded(t)
	delete(det.faces, 150)

	res, err := s.Detect()
	if err != nil {
		t.Fatalf("zero faces must not be an error: %v", err)
	}
	if w := res.Warnings(); len(w) != 1 || w[0] != "no faces detected in source image" {
		t.Errorf("warnings = %v", w)
	}
	if err := s.Composite(); !errors.Is(err, swapper.ErrNoSourceFaces) {
		t.Errorf("err = %v, want ErrNoSourceFaces", err)
	}

	det.err = errors.New("model crashed")
	if _, err := s.Detect(); err == nil {
		t.Fatal("expected detector error")
	}
	if snap := s.Snapshot(); len(snap.TargetFaces) != 2 {
		t.Errorf("failed detection changed target faces: %d", len(snap.TargetFaces))
	}
}

func TestDetectClearsSelection(t *testing.T) {
	s, _ := newLoaded(t)
	if _, err := s.Detect(); err != nil {
		t.Fatal(err)
	}
	s.SelectAll()
	if _, err := s.Detect(); err != nil {
		t.Fatal(err)
	}
	if sel := s.Snapshot().Selected; len(sel) != 0 {
		t.Errorf("selection = %v after re-detect, want empty", sel)
	}
}

func TestToggleAt(t *testing.T) {
	s, _ := newLoaded(t)
	if _, err := s.Detect(); err != nil {
		t.Fatal(err)
	}

	// 300x300 target on a 600x600 surface: scale 2, no offset
	surface := viewport.Size{W: 600, H: 600}
	if i, selected := s.ToggleAt(460, 460, surface); i != 1 || !selected {
		t.Errorf("ToggleAt = %d, %v; want 1, true", i, selected)
	}
	if i, selected := s.ToggleAt(460, 460, surface); i != 1 || selected {
		t.Errorf("second ToggleAt = %d, %v; want 1, false", i, selected)
	}
	if i, _ := s.ToggleAt(300, 300, surface); i != -1 {
		t.Errorf("miss returned %d", i)
	}
	if sel := s.Snapshot().Selected; len(sel) != 0 {
		t.Errorf("selection = %v, want empty", sel)
	}
}

func TestToggleIndexOutOfRange(t *testing.T) {
	s, _ := newLoaded(t)
	if _, err := s.ToggleIndex(0); err == nil {
		t.Error("expected error before detection")
	}
}

func TestCrop(t *testing.T) {
	s, _ := newLoaded(t)
	if _, err := s.Detect(); err != nil {
		t.Fatal(err)
	}
	s.SelectAll()

	// 300x300 target on a 600x600 surface, drawn right-to-left
	err := s.CropTarget(viewport.Rect{X1: 240, Y1: 240, X2: 40, Y2: 40}, viewport.Size{W: 600, H: 600})
	if err != nil {
		t.Fatalf("CropTarget: %v", err)
	}
	snap := s.Snapshot()
	if snap.TargetSize != image.Pt(100, 100) {
		t.Errorf("target size = %v, want 100x100", snap.TargetSize)
	}
	if len(snap.TargetFaces) != 0 || len(snap.Selected) != 0 {
		t.Errorf("crop kept faces %d selection %v", len(snap.TargetFaces), snap.Selected)
	}
	if len(snap.SourceFaces) != 1 {
		t.Errorf("target crop cleared source faces")
	}
}

func TestCropEmptyRect(t *testing.T) {
	s, _ := newLoaded(t)
	if _, err := s.Detect(); err != nil {
		t.Fatal(err)
	}

	err := s.CropSource(viewport.Rect{X1: 10, Y1: 10, X2: 10, Y2: 90}, viewport.Size{W: 150, H: 150})
	if !errors.Is(err, viewport.ErrEmptyRect) {
		t.Fatalf("err = %v, want ErrEmptyRect", err)
	}
	snap := s.Snapshot()
	if snap.SourceSize != image.Pt(150, 150) || len(snap.SourceFaces) != 1 {
		t.Errorf("failed crop changed state: %+v", snap)
	}
}

func TestCompositePartialFailureKeepsTarget(t *testing.T) {
	s, det := newLoaded(t)
	det.faces[300] = faces(image.Rect(200, 200, 260, 260), image.Rect(280, 280, 340, 340))
	if _, err := s.Detect(); err != nil {
		t.Fatal(err)
	}
	s.SelectAll()

	original := s.Image(Target)
	defer original.Close()

	err := s.Composite()
	var cerr *swapper.CompositeError
	if !errors.As(err, &cerr) || cerr.Index != 1 {
		t.Fatalf("err = %v, want CompositeError on index 1", err)
	}

	if !s.Snapshot().HasResult {
		t.Fatal("partial result not kept")
	}
	target := s.Image(Target)
	defer target.Close()
	if !bytes.Equal(target.ToBytes(), original.ToBytes()) {
		t.Error("target changed by failed composite")
	}
}

func TestCompositeProgress(t *testing.T) {
	s, _ := newLoaded(t)
	if _, err := s.Detect(); err != nil {
		t.Fatal(err)
	}
	s.SelectAll()

	var last, total int
	if err := s.Composite(WithProgress(func(d, n int) { last, total = d, n })); err != nil {
		t.Fatal(err)
	}
	if last != 2 || total != 2 {
		t.Errorf("progress = %d/%d, want 2/2", last, total)
	}
}

func TestSaveWithoutResult(t *testing.T) {
	s, _ := newLoaded(t)
	if err := s.Save(filepath.Join(t.TempDir(), "out.png")); !errors.Is(err, ErrNoResult) {
		t.Errorf("err = %v, want ErrNoResult", err)
	}
}
