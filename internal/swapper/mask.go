package swapper

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// EllipseMask returns a single-channel h x w mask with a filled ellipse of
// value 255 on 0, centered at (w/2, h/2) with semi-axes inset pixels short
// of the box edges (floored at 0).
func EllipseMask(w, h, inset int) (gocv.Mat, error) {
	mask := gocv.Zeros(h, w, gocv.MatTypeCV8U)

	axes := image.Pt(max(w/2-inset, 0), max(h/2-inset, 0))
	if err := gocv.Ellipse(&mask, image.Pt(w/2, h/2), axes, 0, 0, 360, white, -1); err != nil {
		mask.Close()
		return gocv.NewMat(), fmt.Errorf("draw ellipse mask: %w", err)
	}

	return mask, nil
}

// FeatherMask returns the ellipse mask blurred into a smooth 0-255 ramp
func FeatherMask(w, h int, opts Options) (gocv.Mat, error) {
	mask, err := EllipseMask(w, h, opts.Inset)
	if err != nil {
		return mask, err
	}

	k := opts.kernel()
	if err := gocv.GaussianBlur(mask, &mask, image.Pt(k, k), opts.Sigma, opts.Sigma, gocv.BorderDefault); err != nil {
		mask.Close()
		return gocv.NewMat(), fmt.Errorf("feather mask: %w", err)
	}

	return mask, nil
}

// blend computes face*alpha + region*(1-alpha) per channel where alpha is
// mask/255, returning a new 8-bit 3-channel Mat.
func blend(face, region, mask gocv.Mat) (gocv.Mat, error) {
	if face.Channels() != 3 || region.Channels() != 3 {
		return gocv.NewMat(), fmt.Errorf("blend needs 3-channel rasters, got face=%d region=%d: %w",
			face.Channels(), region.Channels(), ErrChannels)
	}

	alpha := gocv.NewMat()
	defer alpha.Close()
	if err := mask.ConvertToWithParams(&alpha, gocv.MatTypeCV32F, 1.0/255.0, 0); err != nil {
		return gocv.NewMat(), fmt.Errorf("mask to alpha: %w", err)
	}

	inverse := gocv.NewMat()
	defer inverse.Close()
	if err := mask.ConvertToWithParams(&inverse, gocv.MatTypeCV32F, -1.0/255.0, 1); err != nil {
		return gocv.NewMat(), fmt.Errorf("mask to inverse alpha: %w", err)
	}

	alpha3, err := broadcast(alpha)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer alpha3.Close()
	inverse3, err := broadcast(inverse)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer inverse3.Close()

	faceF := gocv.NewMat()
	defer faceF.Close()
	if err := face.ConvertTo(&faceF, gocv.MatTypeCV32FC3); err != nil {
		return gocv.NewMat(), fmt.Errorf("face to float: %w", err)
	}

	regionF := gocv.NewMat()
	defer regionF.Close()
	if err := region.ConvertTo(&regionF, gocv.MatTypeCV32FC3); err != nil {
		return gocv.NewMat(), fmt.Errorf("region to float: %w", err)
	}

	fg := gocv.NewMat()
	defer fg.Close()
	if err := gocv.Multiply(faceF, alpha3, &fg); err != nil {
		return gocv.NewMat(), fmt.Errorf("weight face: %w", err)
	}

	bg := gocv.NewMat()
	defer bg.Close()
	if err := gocv.Multiply(regionF, inverse3, &bg); err != nil {
		return gocv.NewMat(), fmt.Errorf("weight region: %w", err)
	}

	sum := gocv.NewMat()
	defer sum.Close()
	if err := gocv.Add(fg, bg, &sum); err != nil {
		return gocv.NewMat(), fmt.Errorf("sum layers: %w", err)
	}

	out := gocv.NewMat()
	if err := sum.ConvertTo(&out, gocv.MatTypeCV8UC3); err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("blend to 8-bit: %w", err)
	}
	return out, nil
}

// broadcast stacks a single-channel Mat into three channels
func broadcast(m gocv.Mat) (gocv.Mat, error) {
	out := gocv.NewMat()
	if err := gocv.Merge([]gocv.Mat{m, m, m}, &out); err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("broadcast alpha: %w", err)
	}
	return out, nil
}
