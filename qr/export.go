package qr

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// Canvas is a rendered QR image.
type Canvas struct {
	img  image.Image
	text string
}

// Image returns the underlying image.
func (c *Canvas) Image() image.Image { return c.img }

// Size returns the canvas edge length in pixels.
func (c *Canvas) Size() int { return c.img.Bounds().Dx() }

// Text returns the payload the canvas encodes.
func (c *Canvas) Text() string { return c.text }

// PNG encodes the canvas as PNG.
func (c *Canvas) PNG() ([]byte, error) {
	return encodePNG(c.img)
}

// DataURL returns the canvas as a data:image/png;base64 URL.
func (c *Canvas) DataURL() (string, error) {
	b, err := c.PNG()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// Export produces PNG bytes for a download. The canvas is used when present;
// otherwise fallback is rasterized onto a square of max(natural size,
// lastSize) pixels, clamped to [MinSize, MaxSize]. ok is false when there is
// nothing to export.
func Export(canvas *Canvas, fallback image.Image, lastSize int) (data []byte, ok bool, err error) {
	if canvas != nil {
		data, err = canvas.PNG()
		return data, err == nil, err
	}
	if fallback == nil {
		return nil, false, nil
	}

	size := FallbackSize(fallback, lastSize)
	if size == 0 {
		return nil, false, nil
	}

	data, err = encodePNG(Rasterize(fallback, size))
	return data, err == nil, err
}

// FallbackSize is the edge Export rasterizes fallback at, or 0 when neither
// the image nor lastSize gives one.
func FallbackSize(fallback image.Image, lastSize int) int {
	size := lastSize
	if n := fallback.Bounds().Dx(); n > size {
		size = n
	}
	if size <= 0 {
		return 0
	}
	return Clamp(size)
}

// Rasterize draws src scaled onto a new size x size RGBA image.
func Rasterize(src image.Image, size int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
