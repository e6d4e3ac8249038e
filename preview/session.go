package preview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/genqr/genqr/qr"
)

// Event is something that should cause the preview to redraw.
type Event interface{ event() }

// InputEvent carries the latest contents of the text field.
type InputEvent struct{ Text string }

// ContainerResizeEvent is reported by the client's resize observer for the
// preview box.
type ContainerResizeEvent struct{ Rect qr.Rect }

// WindowResizeEvent is reported on every window resize. Renders for these are
// debounced.
type WindowResizeEvent struct{ Width, Height float64 }

func (InputEvent) event()           {}
func (ContainerResizeEvent) event() {}
func (WindowResizeEvent) event()    {}

// Options configures a Session.
type Options struct {
	Level    qrcode.RecoveryLevel
	Debounce time.Duration
	// ObserveContainer is true when the client can observe the preview box.
	// Without it, container events are ignored and only window resizes
	// drive re-rendering.
	ObserveContainer bool
	Viewport         qr.Viewport
	Text             string
}

// Session drives one Renderer from a stream of events. Frames are delivered
// on Frames in render order.
type Session struct {
	ID string

	renderer *Renderer
	observe  bool
	events   chan Event
	frames   chan Frame
	fire     chan struct{}
	debounce *Debouncer
	log      *slog.Logger

	// owned by the loop goroutine
	viewport qr.Viewport

	done   <-chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession starts a session and renders opts.Text once at opts.Viewport.
// The session runs until ctx is cancelled or Close is called.
func NewSession(ctx context.Context, opts Options, log *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(ctx)

	vp := opts.Viewport
	if !opts.ObserveContainer {
		vp.Container = nil
	}

	id := uuid.NewString()
	s := &Session{
		ID:       id,
		renderer: NewRenderer(opts.Level),
		observe:  opts.ObserveContainer,
		events:   make(chan Event, 16),
		frames:   make(chan Frame, 4),
		fire:     make(chan struct{}, 1),
		log:      log.With("session", id),
		viewport: vp,
		done:     ctx.Done(),
		cancel:   cancel,
	}
	s.debounce = NewDebouncer(opts.Debounce, func() {
		select {
		case s.fire <- struct{}{}:
		default:
		}
	})

	s.wg.Add(1)
	go s.loop(ctx, opts.Text)
	return s
}

// Send queues ev. It returns false once the session has stopped.
func (s *Session) Send(ctx context.Context, ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Frames returns the channel of rendered frames. It is closed when the
// session stops.
func (s *Session) Frames() <-chan Frame { return s.frames }

// Renderer exposes the session's renderer for downloads and copies.
func (s *Session) Renderer() *Renderer { return s.renderer }

// Close stops the session and waits for its goroutine to exit.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Session) loop(ctx context.Context, text string) {
	defer s.wg.Done()
	defer close(s.frames)
	defer s.debounce.Stop()

	s.log.Info("preview session started", "observe_container", s.observe)
	defer s.log.Info("preview session stopped")

	if !s.emit(ctx, s.input(text)) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-s.events:
			switch e := ev.(type) {
			case InputEvent:
				if !s.emit(ctx, s.input(e.Text)) {
					return
				}
			case ContainerResizeEvent:
				if !s.observe {
					continue
				}
				rect := e.Rect
				s.viewport.Container = &rect
				if !s.emit(ctx, s.rerender()) {
					return
				}
			case WindowResizeEvent:
				s.viewport.Width, s.viewport.Height = e.Width, e.Height
				s.debounce.Trigger()
			}

		case <-s.fire:
			if !s.emit(ctx, s.rerender()) {
				return
			}
		}
	}
}

// Render errors travel in Frame.Err.
func (s *Session) input(text string) Frame {
	f, _ := s.renderer.Render(text, s.viewport)
	return f
}

func (s *Session) rerender() Frame {
	f, _ := s.renderer.Rerender(s.viewport)
	return f
}

func (s *Session) emit(ctx context.Context, f Frame) bool {
	if f.Err != nil {
		s.log.Warn("render failed", "error", f.Err, "size", f.Size)
	} else {
		s.log.Debug("rendered", "size", f.Size, "reinitialized", f.Reinitialized)
	}
	select {
	case s.frames <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
