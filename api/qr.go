package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/genqr/genqr/preview"
	"github.com/genqr/genqr/qr"
	"github.com/genqr/genqr/store"
)

// defaultSize is used when a request names neither a size nor a viewport.
const defaultSize = 512

// maxUploadBytes bounds the fallback image accepted by POST /download.
const maxUploadBytes = 8 << 20

var errUnknownSession = errors.New("unknown session")

type qrDataResponse struct {
	Size    int    `json:"size"`
	Enabled bool   `json:"enabled"`
	QRPNG   string `json:"qr_png,omitempty"`
	Error   string `json:"error,omitempty"`
}

// rendered is what a request resolved to: a live session's current canvas or
// a one-off render of the text parameter.
type rendered struct {
	text   string
	size   int
	canvas *qr.Canvas
}

func (s *Server) resolve(r *http.Request) (rendered, error) {
	if id := r.URL.Query().Get("session"); id != "" {
		sess := s.session(id)
		if sess == nil {
			return rendered{}, errUnknownSession
		}
		snap := sess.Renderer().Snapshot()
		return rendered{text: snap.Text, size: snap.Size, canvas: snap.Canvas}, nil
	}

	text := r.URL.Query().Get("text")
	frame, err := preview.NewRenderer(s.Level).Render(text, viewportFromQuery(r))
	return rendered{text: text, size: frame.Size, canvas: frame.Canvas}, err
}

func (s *Server) handleQRData(w http.ResponseWriter, r *http.Request) {
	res, err := s.resolve(r)
	if errors.Is(err, errUnknownSession) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	resp := qrDataResponse{Size: res.size, Enabled: preview.HasText(res.text)}
	if err != nil {
		resp.Error = err.Error()
		resp.Enabled = false
	} else if res.canvas != nil {
		png, err := res.canvas.PNG()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.QRPNG = base64.StdEncoding.EncodeToString(png)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleQRPNG serves the current PNG inline; the page copies it to the
// clipboard from here.
func (s *Server) handleQRPNG(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resolveForExport(w, r)
	if !ok {
		return
	}
	data, exported, err := qr.Export(res.canvas, nil, res.size)
	if !s.checkExport(w, exported, err) {
		return
	}
	writePNG(w, data, "")
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resolveForExport(w, r)
	if !ok {
		return
	}
	data, exported, err := qr.Export(res.canvas, nil, res.size)
	if !s.checkExport(w, exported, err) {
		return
	}

	name := s.filename(r.URL.Query().Get("filename"))
	s.record(r, res.text, name, res.size)
	writePNG(w, data, name)
}

// handleDownloadImage rasterizes an uploaded image (the page's <img>
// fallback) into a download. Form fields: image, filename, size, text.
func (s *Server) handleDownloadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}

	var fallback image.Image
	if file, _, err := r.FormFile("image"); err == nil {
		img, status, err := decodeUpload(file)
		file.Close()
		if err != nil {
			writeError(w, status, err.Error())
			return
		}
		fallback = img
	}

	lastSize, _ := strconv.Atoi(r.FormValue("size"))
	data, exported, err := qr.Export(nil, fallback, lastSize)
	if !s.checkExport(w, exported, err) {
		return
	}

	name := s.filename(r.FormValue("filename"))
	if text := r.FormValue("text"); preview.HasText(text) {
		s.record(r, text, name, qr.FallbackSize(fallback, lastSize))
	}
	writePNG(w, data, name)
}

// decodeUpload checks the image header before decoding so oversized images
// are refused without allocating their pixels.
func decodeUpload(file multipart.File) (image.Image, int, error) {
	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("image is not a supported format")
	}
	if cfg.Width > qr.MaxSize || cfg.Height > qr.MaxSize {
		return nil, http.StatusRequestEntityTooLarge,
			fmt.Errorf("image is %dx%d, larger than %d pixels", cfg.Width, cfg.Height, qr.MaxSize)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("rewind image: %w", err)
	}
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("image is not a supported format")
	}
	return img, 0, nil
}

// resolveForExport answers 204 when there is nothing to export, leaving the
// page's click a no-op.
func (s *Server) resolveForExport(w http.ResponseWriter, r *http.Request) (rendered, bool) {
	res, err := s.resolve(r)
	switch {
	case errors.Is(err, errUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
		return res, false
	case errors.Is(err, qr.ErrTooLong):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return res, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return res, false
	case !preview.HasText(res.text):
		w.WriteHeader(http.StatusNoContent)
		return res, false
	}
	return res, true
}

func (s *Server) checkExport(w http.ResponseWriter, exported bool, err error) bool {
	if err != nil {
		s.Log.Error("export png", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to encode png")
		return false
	}
	if !exported {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	return true
}

func (s *Server) filename(name string) string {
	if strings.TrimSpace(name) == "" {
		name = s.DefaultFilename
	}
	return qr.SanitizeFilename(name)
}

func (s *Server) record(r *http.Request, text, filename string, size int) {
	if s.Store == nil {
		return
	}
	e := &store.Entry{Text: text, Filename: filename, Size: size}
	if err := s.Store.Save(r.Context(), e); err != nil {
		s.Log.Warn("record history", "error", err)
	}
}

func writePNG(w http.ResponseWriter, data []byte, attachment string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	if attachment != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// viewportFromQuery reads size, cw/ch (container box) and w/h (window) in
// that order of precedence.
func viewportFromQuery(r *http.Request) qr.Viewport {
	if n := queryFloat(r, "size"); n > 0 {
		return qr.Viewport{Container: &qr.Rect{Width: n, Height: n}}
	}
	vp := qr.Viewport{Width: queryFloat(r, "w"), Height: queryFloat(r, "h")}
	if cw, ch := queryFloat(r, "cw"), queryFloat(r, "ch"); cw > 0 && ch > 0 {
		vp.Container = &qr.Rect{Width: cw, Height: ch}
	}
	if vp.Container == nil && (vp.Width <= 0 || vp.Height <= 0) {
		vp.Container = &qr.Rect{Width: defaultSize, Height: defaultSize}
	}
	return vp
}

func queryFloat(r *http.Request, key string) float64 {
	v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
