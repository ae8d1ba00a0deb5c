// Package imaging decodes uploaded pictures, shrinks them to fit a bounding
// box and re-encodes them in their original format.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
)

var (
	// ErrDecode wraps any failure to parse the input as an image.
	ErrDecode = errors.New("imaging: decode failed")
	// ErrDimensions is returned when the declared pixel count exceeds the cap.
	ErrDimensions = errors.New("imaging: image dimensions exceed limit")
)

// Result is a processed image ready for storage.
type Result struct {
	Body        []byte
	ContentType string
	Width       int
	Height      int
}

// ResizeToLimit decodes r and scales it down, preserving aspect ratio, so that
// it fits within maxWidth x maxHeight. Images already within bounds are
// re-encoded at their original size. Animated GIFs keep only their first frame.
//
// The header is checked before decoding: images declaring more than maxPixels
// pixels are rejected with ErrDimensions. A maxPixels of zero disables the check.
func ResizeToLimit(r io.Reader, maxWidth, maxHeight int, maxPixels int64) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("imaging: read: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrDimensions, cfg.Width, cfg.Height)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), maxWidth, maxHeight)
	out := src
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	var contentType string
	switch format {
	case "jpeg":
		contentType = "image/jpeg"
		err = jpeg.Encode(&buf, out, &jpeg.Options{Quality: 90})
	case "gif":
		contentType = "image/gif"
		err = gif.Encode(&buf, out, nil)
	default:
		contentType = "image/png"
		err = png.Encode(&buf, out)
	}
	if err != nil {
		return nil, fmt.Errorf("imaging: encode %s: %w", format, err)
	}

	return &Result{Body: buf.Bytes(), ContentType: contentType, Width: w, Height: h}, nil
}

// fit returns the largest size no bigger than the box that keeps the ratio.
// It never upscales.
func fit(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	// Compare w/maxW against h/maxH without floating point.
	if w*maxH >= h*maxW {
		nh := h * maxW / w
		if nh < 1 {
			nh = 1
		}
		return maxW, nh
	}
	nw := w * maxH / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxH
}
