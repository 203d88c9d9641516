// Package imageio reads and writes rasters. Every Mat handed out by this
// package is 3-channel 8-bit RGB; files on disk keep OpenCV's BGR order.
package imageio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

var (
	ErrUnreadable        = errors.New("unreadable image")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

var formats = map[string]gocv.FileExt{
	".png":  gocv.PNGFileExt,
	".jpg":  gocv.JPEGFileExt,
	".jpeg": gocv.JPEGFileExt,
	".bmp":  gocv.FileExt(".bmp"),
}

// Format returns the encoder extension for path, or ErrUnsupportedFormat
func Format(path string) (gocv.FileExt, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := formats[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// Load reads an image file as RGB
func Load(path string) (gocv.Mat, error) {
	if _, err := Format(path); err != nil {
		return gocv.NewMat(), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	img, err := Decode(data)
	if err != nil {
		return img, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Decode decodes an encoded image as RGB
func Decode(data []byte) (gocv.Mat, error) {
	bgr, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer bgr.Close()
	if bgr.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: decoder returned no pixels", ErrUnreadable)
	}

	rgb := gocv.NewMat()
	if err := gocv.CvtColor(bgr, &rgb, gocv.ColorBGRToRGB); err != nil {
		rgb.Close()
		return gocv.NewMat(), fmt.Errorf("%w: convert to RGB: %w", ErrUnreadable, err)
	}
	return rgb, nil
}

// Encode encodes an RGB raster in the given format
func Encode(format gocv.FileExt, img gocv.Mat) ([]byte, error) {
	if img.Empty() {
		return nil, errors.New("cannot encode empty image")
	}
	if img.Channels() != 3 {
		return nil, fmt.Errorf("expected 3-channel image, got %d", img.Channels())
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	if err := gocv.CvtColor(img, &bgr, gocv.ColorRGBToBGR); err != nil {
		return nil, fmt.Errorf("convert to BGR: %w", err)
	}

	buf, err := gocv.IMEncode(format, bgr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Save writes an RGB raster, choosing the format by extension
func Save(path string, img gocv.Mat) error {
	format, err := Format(path)
	if err != nil {
		return err
	}
	data, err := Encode(format, img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
