// Package qr renders QR code images for the preview and exports them as PNG.
//
// Symbol encoding is delegated to github.com/skip2/go-qrcode. This package
// adds the pieces around it: sizing the image to the available space,
// sanitizing download names, and turning a rendered widget into PNG bytes.
package qr

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
)

var (
	// ErrTooLong is returned when text exceeds the symbol capacity at the
	// widget's recovery level.
	ErrTooLong = errors.New("qr: text too long to encode")

	// ErrInvalidLevel is returned by ParseLevel for unknown level names.
	ErrInvalidLevel = errors.New("qr: invalid recovery level")
)

// ParseLevel maps the usual single-letter names (L, M, Q, H) to a recovery
// level. An empty string selects Medium.
func ParseLevel(s string) (qrcode.RecoveryLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L", "LOW":
		return qrcode.Low, nil
	case "", "M", "MEDIUM":
		return qrcode.Medium, nil
	case "Q", "HIGH":
		return qrcode.High, nil
	case "H", "HIGHEST":
		return qrcode.Highest, nil
	}
	return qrcode.Medium, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Widget is a fixed-size QR renderer with an imperative clear/make API.
// A Widget is not safe for concurrent use; callers serialize access.
type Widget struct {
	size   int
	level  qrcode.RecoveryLevel
	canvas *Canvas
}

// NewWidget returns an empty widget drawing size x size images. The size is
// clamped to [MinSize, MaxSize].
func NewWidget(size int, level qrcode.RecoveryLevel) *Widget {
	return &Widget{size: Clamp(size), level: level}
}

// Size returns the widget's edge length in pixels.
func (w *Widget) Size() int { return w.size }

// Clear drops the current canvas.
func (w *Widget) Clear() { w.canvas = nil }

// Canvas returns the current canvas, or nil if nothing has been drawn.
func (w *Widget) Canvas() *Canvas { return w.canvas }

// MakeCode encodes text and draws it onto a fresh canvas. Empty text leaves
// the widget cleared and is not an error.
func (w *Widget) MakeCode(text string) error {
	w.canvas = nil
	if text == "" {
		return nil
	}

	q, err := qrcode.New(text, w.level)
	if err != nil {
		if strings.Contains(err.Error(), "too long") {
			return fmt.Errorf("%w (%d bytes)", ErrTooLong, len(text))
		}
		return fmt.Errorf("encode qr: %w", err)
	}

	img := q.Image(w.size)
	if b := img.Bounds(); b.Dx() != w.size || b.Dy() != w.size {
		// go-qrcode returns a larger image when the symbol needs more pixels
		// than requested; the canvas edge must still equal the widget size.
		img = scale(img, w.size)
	}
	w.canvas = &Canvas{img: img, text: text}
	return nil
}

func scale(src image.Image, size int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
