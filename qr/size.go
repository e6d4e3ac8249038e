package qr

import "math"

const (
	// MinSize and MaxSize bound every rendered QR code, in pixels.
	MinSize = 96
	MaxSize = 2048

	// ViewportRatio is the share of the viewport's smaller side used when no
	// container box is known.
	ViewportRatio = 0.8
)

// Rect is a bounding box in CSS pixels.
type Rect struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport describes the space available to the preview. Container is the
// preview box's bounding rectangle when the host has one.
type Viewport struct {
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Container *Rect   `json:"container,omitempty"`
}

// ComputeSize returns the target pixel size for v, clamped to
// [MinSize, MaxSize].
func ComputeSize(v Viewport) int {
	if v.Container != nil {
		return clampFloat(math.Floor(math.Min(v.Container.Width, v.Container.Height)))
	}
	return clampFloat(math.Floor(math.Min(v.Width, v.Height) * ViewportRatio))
}

// Clamp bounds n to [MinSize, MaxSize].
func Clamp(n int) int {
	if n < MinSize {
		return MinSize
	}
	if n > MaxSize {
		return MaxSize
	}
	return n
}

func clampFloat(f float64) int {
	if math.IsNaN(f) || f < MinSize {
		return MinSize
	}
	if f > MaxSize {
		return MaxSize
	}
	return int(f)
}
