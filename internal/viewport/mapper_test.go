package viewport

import (
	"errors"
	"image"
	"math"
	"testing"
)

func TestNew_ScaleToFit(t *testing.T) {
	tests := []struct {
		name       string
		imgW, imgH int
		surface    Size
		wantScale  float64
		wantOffX   float64
		wantOffY   float64
	}{
		{
			name:      "wide image letterboxed vertically",
			imgW:      800,
			imgH:      400,
			surface:   Size{W: 400, H: 400},
			wantScale: 0.5,
			wantOffX:  0,
			wantOffY:  100,
		},
		{
			name:      "tall image pillarboxed",
			imgW:      100,
			imgH:      200,
			surface:   Size{W: 600, H: 400},
			wantScale: 2,
			wantOffX:  200,
			wantOffY:  0,
		},
		{
			name:      "exact fit",
			imgW:      640,
			imgH:      480,
			surface:   Size{W: 640, H: 480},
			wantScale: 1,
		},
		{
			name:      "unrealized surface uses fallback",
			imgW:      200,
			imgH:      100,
			surface:   Size{W: 1, H: 1},
			wantScale: 2,
			wantOffX:  0,
			wantOffY:  100,
		},
		{
			name:      "zero height surface uses fallback",
			imgW:      400,
			imgH:      400,
			surface:   Size{W: 900, H: 0},
			wantScale: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.imgW, tt.imgH, tt.surface)
			if math.Abs(m.Scale()-tt.wantScale) > 1e-12 {
				t.Errorf("scale = %v, want %v", m.Scale(), tt.wantScale)
			}
			offX, offY := m.Offset()
			if math.Abs(offX-tt.wantOffX) > 1e-9 || math.Abs(offY-tt.wantOffY) > 1e-9 {
				t.Errorf("offset = (%v, %v), want (%v, %v)", offX, offY, tt.wantOffX, tt.wantOffY)
			}
		})
	}
}

func TestScaleIsMinimumOfAxisRatios(t *testing.T) {
	for _, w := range []int{1, 7, 640, 1920} {
		for _, h := range []int{1, 13, 480, 1080} {
			for _, s := range []Size{{W: 2, H: 2}, {W: 400, H: 300}, {W: 1280, H: 720}, {W: 333, H: 999}} {
				m := New(w, h, s)
				want := math.Min(float64(s.W)/float64(w), float64(s.H)/float64(h))
				if m.Scale() != want {
					t.Fatalf("New(%d, %d, %v).Scale() = %v, want %v", w, h, s, m.Scale(), want)
				}
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	surfaces := []Size{{W: 400, H: 400}, {W: 1280, H: 720}, {W: 333, H: 517}, {W: 50, H: 3000}}
	images := [][2]int{{640, 480}, {17, 931}, {1920, 1080}, {3, 3}}

	for _, s := range surfaces {
		for _, dims := range images {
			m := New(dims[0], dims[1], s)
			for _, p := range [][2]int{{0, 0}, {dims[0] / 2, dims[1] / 3}, {dims[0] - 1, dims[1] - 1}} {
				dx, dy := m.ToDisplay(float64(p[0]), float64(p[1]))
				x, y := m.ToImage(dx, dy)
				if math.Abs(x-float64(p[0])) > 1 || math.Abs(y-float64(p[1])) > 1 {
					t.Errorf("surface %v image %v: round trip of %v gave (%v, %v)", s, dims, p, x, y)
				}
			}
		}
	}
}

func TestToImage_Clamps(t *testing.T) {
	m := New(100, 50, Size{W: 200, H: 200})

	x, y := m.ToImage(-20, -20)
	if x != 0 || y != 0 {
		t.Errorf("expected clamp to origin, got (%v, %v)", x, y)
	}

	x, y = m.ToImage(500, 500)
	if x >= 100 || y >= 50 {
		t.Errorf("expected clamp inside [0,100)x[0,50), got (%v, %v)", x, y)
	}

	p := m.ToImagePoint(500, 500)
	if p != image.Pt(99, 49) {
		t.Errorf("expected last pixel (99,49), got %v", p)
	}
}

func TestRectToImage(t *testing.T) {
	// 200x100 image on a 400x400 surface: scale 2, offY 100
	m := New(200, 100, Size{W: 400, H: 400})

	got, err := m.RectToImage(Rect{X1: 40, Y1: 120, X2: 100, Y2: 200})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := image.Rect(20, 10, 50, 50); got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	// reversed corners are normalized
	got, err = m.RectToImage(Rect{X1: 100, Y1: 200, X2: 40, Y2: 120})
	if err != nil || got != image.Rect(20, 10, 50, 50) {
		t.Errorf("reversed corners: got %v, %v", got, err)
	}

	// clamped to bounds
	got, err = m.RectToImage(Rect{X1: -50, Y1: 0, X2: 1000, Y2: 1000})
	if err != nil || got != image.Rect(0, 0, 200, 100) {
		t.Errorf("clamped: got %v, %v", got, err)
	}
}

func TestRectToImage_Empty(t *testing.T) {
	m := New(200, 100, Size{W: 400, H: 400})

	tests := []struct {
		name string
		rect Rect
	}{
		{"zero width", Rect{X1: 50, Y1: 150, X2: 50, Y2: 250}},
		{"inside letterbox band", Rect{X1: 10, Y1: 0, X2: 300, Y2: 90}},
		{"below image", Rect{X1: 10, Y1: 310, X2: 300, Y2: 400}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.RectToImage(tt.rect); !errors.Is(err, ErrEmptyRect) {
				t.Errorf("expected ErrEmptyRect, got %v", err)
			}
		})
	}
}

func TestRectToDisplay(t *testing.T) {
	m := New(200, 100, Size{W: 400, H: 400})
	got := m.RectToDisplay(image.Rect(10, 10, 50, 50))
	if want := image.Rect(20, 120, 100, 200); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
