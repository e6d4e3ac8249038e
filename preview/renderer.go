// Package preview keeps the live state behind one QR preview: the current
// text, the rendered size and the widget, and re-renders it as input and
// resize events arrive.
package preview

import (
	"strings"
	"sync"

	"github.com/skip2/go-qrcode"

	"github.com/genqr/genqr/qr"
)

// Frame is the result of one render.
type Frame struct {
	Size            int
	Text            string
	ControlsEnabled bool
	// Reinitialized is set when the widget was re-created for a new size.
	Reinitialized bool
	// Canvas is nil when there is nothing to show.
	Canvas *qr.Canvas
	// Err is the encoding failure, if any. The widget stays cleared.
	Err error
}

// Renderer owns the single widget of a preview. It is safe for concurrent use.
type Renderer struct {
	mu       sync.Mutex
	level    qrcode.RecoveryLevel
	widget   *qr.Widget
	lastSize int
	text     string
	viewport qr.Viewport
}

// NewRenderer returns a Renderer with no widget; the first Render creates it.
func NewRenderer(level qrcode.RecoveryLevel) *Renderer {
	return &Renderer{level: level}
}

// Render sets the current text and redraws it at the size computed for vp.
func (r *Renderer) Render(text string, vp qr.Viewport) (Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = text
	r.viewport = vp
	return r.renderLocked()
}

// Rerender redraws the current text for a new viewport.
func (r *Renderer) Rerender(vp qr.Viewport) (Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = vp
	return r.renderLocked()
}

// SetText redraws new text at the last viewport.
func (r *Renderer) SetText(text string) (Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = text
	return r.renderLocked()
}

// Size returns the size of the last render, or 0 before the first one.
func (r *Renderer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSize
}

// Text returns the current text.
func (r *Renderer) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text
}

// Canvas returns the widget's current canvas, if any.
func (r *Renderer) Canvas() *qr.Canvas {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.widget == nil {
		return nil
	}
	return r.widget.Canvas()
}

// Snapshot is the renderer's state read under one lock.
type Snapshot struct {
	Text   string
	Size   int
	Canvas *qr.Canvas
}

// Snapshot returns the current text, size and canvas together, so they
// always belong to the same render.
func (r *Renderer) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{Text: r.text, Size: r.lastSize}
	if r.widget != nil {
		snap.Canvas = r.widget.Canvas()
	}
	return snap
}

func (r *Renderer) renderLocked() (Frame, error) {
	size := qr.ComputeSize(r.viewport)
	reinit := r.ensureLocked(size)

	r.widget.Clear()
	err := r.widget.MakeCode(r.text)

	return Frame{
		Size:            size,
		Text:            r.text,
		ControlsEnabled: HasText(r.text),
		Reinitialized:   reinit,
		Canvas:          r.widget.Canvas(),
		Err:             err,
	}, err
}

// ensureLocked re-creates the widget when there is none yet or the size
// changed. It reports whether a new widget was made.
func (r *Renderer) ensureLocked(size int) bool {
	if r.widget != nil && r.lastSize == size {
		return false
	}
	r.widget = qr.NewWidget(size, r.level)
	r.lastSize = size
	return true
}

// HasText reports whether text has any non-space content. Download and copy
// controls are enabled only then.
func HasText(text string) bool {
	return strings.TrimSpace(text) != ""
}
