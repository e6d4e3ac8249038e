package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/genqr/genqr/preview"
	"github.com/genqr/genqr/qr"
)

const (
	helloTimeout = 10 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is sent by the page. Type is one of hello, input, container
// or window.
type clientMessage struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	Width    float64      `json:"width,omitempty"`
	Height   float64      `json:"height,omitempty"`
	Viewport *qr.Viewport `json:"viewport,omitempty"`
	// Observe is set in hello when the browser has ResizeObserver.
	Observe bool `json:"observe,omitempty"`
}

// serverMessage is sent to the page. Type is session (once, first) or frame.
type serverMessage struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Size    int    `json:"size,omitempty"`
	Enabled bool   `json:"enabled"`
	QRPNG   string `json:"qr_png,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleWebSocket runs one live preview session per connection. The first
// client message must be a hello carrying the initial text and viewport.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var hello clientMessage
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != "hello" {
		s.Log.Debug("websocket closed before hello", "error", err, "type", hello.Type)
		return
	}
	conn.SetReadDeadline(time.Time{})

	opts := preview.Options{
		Level:            s.Level,
		Debounce:         s.Debounce,
		ObserveContainer: hello.Observe,
		Text:             hello.Text,
	}
	if hello.Viewport != nil {
		opts.Viewport = *hello.Viewport
	}

	// ctx ends when either side of the connection gives up, so a stalled
	// writer also unblocks the reader and the session loop.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := preview.NewSession(ctx, opts, s.Log)
	s.addSession(sess)
	defer s.removeSession(sess.ID)

	wait := s.WriteTimeout
	if wait <= 0 {
		wait = writeWait
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		defer cancel()

		write := func(msg serverMessage) bool {
			conn.SetWriteDeadline(time.Now().Add(wait))
			if err := conn.WriteJSON(msg); err != nil {
				s.Log.Debug("websocket write failed", "session", sess.ID, "error", err)
				conn.Close()
				return false
			}
			return true
		}

		if !write(serverMessage{Type: "session", Session: sess.ID}) {
			return
		}
		for f := range sess.Frames() {
			if !write(frameMessage(f)) {
				return
			}
		}
	}()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		var ev preview.Event
		switch msg.Type {
		case "input":
			ev = preview.InputEvent{Text: msg.Text}
		case "container":
			ev = preview.ContainerResizeEvent{Rect: qr.Rect{Width: msg.Width, Height: msg.Height}}
		case "window":
			ev = preview.WindowResizeEvent{Width: msg.Width, Height: msg.Height}
		default:
			s.Log.Debug("ignoring websocket message", "type", msg.Type)
			continue
		}
		if !sess.Send(ctx, ev) {
			break
		}
	}

	sess.Close()
	<-written
}

func frameMessage(f preview.Frame) serverMessage {
	msg := serverMessage{Type: "frame", Size: f.Size, Enabled: f.ControlsEnabled}
	if f.Err != nil {
		msg.Error = f.Err.Error()
		msg.Enabled = false
		return msg
	}
	if f.Canvas != nil {
		if png, err := f.Canvas.PNG(); err == nil {
			msg.QRPNG = base64.StdEncoding.EncodeToString(png)
		}
	}
	return msg
}
