package view

import (
	"image"
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/viewport"
)

func px(m gocv.Mat, x, y int) [3]uint8 {
	v := m.GetVecbAt(y, x)
	return [3]uint8{v[0], v[1], v[2]}
}

func TestRenderTargetFaces(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()

	layer := Layer{
		Image: img,
		Faces: []detector.Face{
			{Box: image.Rect(10, 10, 40, 40)},
			{Box: image.Rect(60, 60, 90, 90)},
		},
		Selected: []int{1},
		Role:     RoleTarget,
	}

	// 100x100 on 200x100: scale 1, centred with a 50 px horizontal offset
	canvas, err := Render(layer, viewport.Size{W: 200, H: 100})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	defer canvas.Close()

	if canvas.Cols() != 200 || canvas.Rows() != 100 {
		t.Fatalf("canvas = %dx%d, want 200x100", canvas.Cols(), canvas.Rows())
	}
	if got := px(canvas, 10, 50); got != [3]uint8{32, 32, 32} {
		t.Errorf("letterbox pixel = %v, want background", got)
	}
	if got := px(canvas, 100, 50); got != [3]uint8{255, 255, 255} {
		t.Errorf("image pixel = %v, want white", got)
	}

	// Left edge of each box, in RGB
	if got := px(canvas, 60, 30); got != [3]uint8{0, 255, 0} {
		t.Errorf("unselected edge = %v, want green", got)
	}
	if got := px(canvas, 110, 75); got != [3]uint8{255, 0, 0} {
		t.Errorf("selected edge = %v, want red", got)
	}
}

func TestRenderSourceFaces(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 50, 50, gocv.MatTypeCV8UC3)
	defer img.Close()

	// 50x50 on 100x100: scale 2, no offset
	canvas, err := Render(Layer{
		Image: img,
		Faces: []detector.Face{{Box: image.Rect(10, 10, 30, 30)}},
		Role:  RoleSource,
	}, viewport.Size{W: 100, H: 100})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	defer canvas.Close()

	if got := px(canvas, 20, 40); got != [3]uint8{0, 0, 255} {
		t.Errorf("source edge = %v, want blue", got)
	}
}

func TestRenderFallbackSurface(t *testing.T) {
	img := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer img.Close()

	canvas, err := Render(Layer{Image: img}, viewport.Size{W: 1, H: 1})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	defer canvas.Close()
	if canvas.Cols() != 400 || canvas.Rows() != 400 {
		t.Errorf("canvas = %dx%d, want fallback 400x400", canvas.Cols(), canvas.Rows())
	}
}

func TestRenderEmpty(t *testing.T) {
	canvas, err := Render(Layer{Image: gocv.NewMat()}, viewport.Size{W: 100, H: 100})
	defer canvas.Close()
	if err == nil {
		t.Error("expected error rendering empty image")
	}
}

func TestSideBySide(t *testing.T) {
	a := gocv.NewMatWithSize(40, 40, gocv.MatTypeCV8UC3)
	defer a.Close()
	b := gocv.NewMatWithSize(80, 20, gocv.MatTypeCV8UC3)
	defer b.Close()

	out, err := SideBySide(Layer{Image: a}, Layer{Image: b, Role: RoleTarget}, viewport.Size{W: 400, H: 200})
	if err != nil {
		t.Fatalf("SideBySide: %v", err)
	}
	defer out.Close()
	if out.Cols() != 400 || out.Rows() != 200 {
		t.Errorf("canvas = %dx%d, want 400x200", out.Cols(), out.Rows())
	}
}

func TestLabelOrigin(t *testing.T) {
	if got := labelOrigin(image.Rect(5, 40, 20, 60)); got != image.Pt(5, 35) {
		t.Errorf("label above = %v", got)
	}
	if got := labelOrigin(image.Rect(5, 2, 20, 60)); got != image.Pt(5, 17) {
		t.Errorf("label inside = %v", got)
	}
}

func TestSplit(t *testing.T) {
	surface := viewport.Size{W: 800, H: 400}
	tests := []struct {
		x, y   int
		role   Role
		lx, ly float64
	}{
		{0, 0, RoleSource, 0, 0},
		{399, 20, RoleSource, 399, 20},
		{400, 20, RoleTarget, 0, 20},
		{799, 399, RoleTarget, 399, 399},
	}
	for _, tt := range tests {
		role, x, y := Split(surface, tt.x, tt.y)
		if role != tt.role || x != tt.lx || y != tt.ly {
			t.Errorf("Split(%d, %d) = %v (%v, %v), want %v (%v, %v)",
				tt.x, tt.y, role, x, y, tt.role, tt.lx, tt.ly)
		}
	}
	if got := HalfSize(surface); got != (viewport.Size{W: 400, H: 400}) {
		t.Errorf("HalfSize = %+v", got)
	}
}

func TestSplitRect(t *testing.T) {
	surface := viewport.Size{W: 800, H: 400}

	role, r, err := SplitRect(surface, image.Rect(450, 10, 500, 60))
	if err != nil {
		t.Fatalf("SplitRect: %v", err)
	}
	if role != RoleTarget || r != (viewport.Rect{X1: 50, Y1: 10, X2: 100, Y2: 60}) {
		t.Errorf("SplitRect = %v %+v", role, r)
	}

	role, r, err = SplitRect(surface, image.Rect(0, 0, 400, 400))
	if err != nil || role != RoleSource || r.X2 != 400 {
		t.Errorf("full left half = %v %+v %v", role, r, err)
	}

	if _, _, err := SplitRect(surface, image.Rect(390, 0, 410, 10)); err == nil {
		t.Error("expected error for rectangle spanning both halves")
	}
	if _, _, err := SplitRect(surface, image.Rectangle{}); err == nil {
		t.Error("expected error for empty rectangle")
	}
}
