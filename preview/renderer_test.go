package preview_test

import (
	"strings"
	"testing"

	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genqr/genqr/preview"
	"github.com/genqr/genqr/qr"
)

func box(n float64) qr.Viewport {
	return qr.Viewport{Container: &qr.Rect{Width: n, Height: n}}
}

func TestRendererReinitializesOnlyOnSizeChange(t *testing.T) {
	t.Parallel()

	r := preview.NewRenderer(qrcode.Medium)
	assert.Equal(t, 0, r.Size())

	f, err := r.Render("hello", box(300))
	require.NoError(t, err)
	assert.True(t, f.Reinitialized)
	assert.Equal(t, 300, f.Size)
	assert.Equal(t, 300, f.Canvas.Size())

	f, err = r.SetText("hello again")
	require.NoError(t, err)
	assert.False(t, f.Reinitialized)
	assert.Equal(t, "hello again", f.Canvas.Text())

	f, err = r.Rerender(box(300.7))
	require.NoError(t, err)
	assert.False(t, f.Reinitialized, "same floored size keeps the widget")

	f, err = r.Rerender(box(420))
	require.NoError(t, err)
	assert.True(t, f.Reinitialized)
	assert.Equal(t, 420, f.Canvas.Size())
	assert.Equal(t, 420, r.Size())
	assert.Equal(t, "hello again", r.Text())
}

func TestRendererControls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text      string
		enabled   bool
		hasCanvas bool
	}{
		{"", false, false},
		{"   \t\n", false, true},
		{"x", true, true},
		{"  padded  ", true, true},
	}
	for _, tt := range tests {
		f, err := preview.NewRenderer(qrcode.Medium).Render(tt.text, box(200))
		require.NoError(t, err)
		assert.Equal(t, tt.enabled, f.ControlsEnabled, "%q", tt.text)
		assert.Equal(t, tt.hasCanvas, f.Canvas != nil, "%q", tt.text)
	}
}

func TestRendererSizeAlwaysClamped(t *testing.T) {
	t.Parallel()

	r := preview.NewRenderer(qrcode.Medium)
	for _, vp := range []qr.Viewport{box(1), box(99999), {Width: 50, Height: 50}, {Width: 9000, Height: 9000}} {
		f, err := r.Render("clamp", vp)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, f.Size, qr.MinSize)
		assert.LessOrEqual(t, f.Size, qr.MaxSize)
		assert.Equal(t, f.Size, f.Canvas.Size())
	}
}

func TestRendererEncodingError(t *testing.T) {
	t.Parallel()

	r := preview.NewRenderer(qrcode.Medium)
	_, err := r.Render("fine", box(200))
	require.NoError(t, err)

	f, err := r.SetText(strings.Repeat("z", 4000))
	require.ErrorIs(t, err, qr.ErrTooLong)
	assert.ErrorIs(t, f.Err, qr.ErrTooLong)
	assert.Nil(t, f.Canvas)
	assert.Nil(t, r.Canvas())
}

func TestRendererSnapshotIsConsistent(t *testing.T) {
	t.Parallel()

	r := preview.NewRenderer(qrcode.Medium)
	_, err := r.Render("first", box(100))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				r.Render("second", box(200))
			} else {
				r.Render("first", box(100))
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		snap := r.Snapshot()
		require.NotNil(t, snap.Canvas)
		require.Equal(t, snap.Text, snap.Canvas.Text())
		require.Equal(t, snap.Size, snap.Canvas.Size())
	}
}
