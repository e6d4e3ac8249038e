package api_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genqr/genqr/api"
	"github.com/genqr/genqr/store"
)

func newTestServer(t *testing.T, configure ...func(*api.Server)) (*httptest.Server, *store.HistoryStore) {
	t.Helper()

	history, err := store.NewHistoryStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	s := &api.Server{
		Store:           history,
		Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version:         "test",
		Level:           qrcode.Medium,
		Debounce:        20 * time.Millisecond,
		DefaultFilename: "qrcode.png",
		HistoryLimit:    50,
	}
	for _, fn := range configure {
		fn(s)
	}

	ts := httptest.NewServer(api.NewRouter(s))
	t.Cleanup(ts.Close)
	return ts, history
}

func get(t *testing.T, ts *httptest.Server, path string, q url.Values) *http.Response {
	t.Helper()
	u := ts.URL + path
	if q != nil {
		u += "?" + q.Encode()
	}
	resp, err := http.Get(u)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodePNG(t *testing.T, r io.Reader) image.Image {
	t.Helper()
	img, err := png.Decode(r)
	require.NoError(t, err)
	return img
}

func scan(t *testing.T, img image.Image) string {
	t.Helper()
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)
	res, err := zxqr.NewQRCodeReader().Decode(bmp, nil)
	require.NoError(t, err)
	return res.GetText()
}

type qrData struct {
	Size    int    `json:"size"`
	Enabled bool   `json:"enabled"`
	QRPNG   string `json:"qr_png"`
	Error   string `json:"error"`
}

func TestQRDataEmptyTextDisablesControls(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	for _, text := range []string{"", "   "} {
		resp := get(t, ts, "/qr/data", url.Values{"text": {text}, "w": {"1000"}, "h": {"500"}})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var data qrData
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
		assert.False(t, data.Enabled, "%q", text)
		assert.Equal(t, 400, data.Size)
	}
}

func TestQRDataRendersAtContainerSize(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := get(t, ts, "/qr/data", url.Values{
		"text": {"https://example.com"},
		"w":    {"1920"}, "h": {"1080"},
		"cw": {"300"}, "ch": {"400"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data qrData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	assert.True(t, data.Enabled)
	assert.Equal(t, 300, data.Size)

	raw, err := base64.StdEncoding.DecodeString(data.QRPNG)
	require.NoError(t, err)
	img := decodePNG(t, bytes.NewReader(raw))
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, "https://example.com", scan(t, img))
}

func TestQRDataTooLong(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := get(t, ts, "/qr/data", url.Values{"text": {strings.Repeat("a", 5000)}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data qrData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	assert.False(t, data.Enabled)
	assert.Empty(t, data.QRPNG)
	assert.Contains(t, data.Error, "too long")
}

func TestDownloadEmptyTextIsNoop(t *testing.T) {
	t.Parallel()
	ts, history := newTestServer(t)

	for _, text := range []string{"", " \t "} {
		resp := get(t, ts, "/download", url.Values{"text": {text}, "filename": {"x"}})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Content-Disposition"))
	}

	entries, err := history.Recent(testContext(t), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadAttachment(t *testing.T) {
	t.Parallel()
	ts, history := newTestServer(t)

	resp := get(t, ts, "/download", url.Values{
		"text":     {"hello world"},
		"filename": {"  My Code!  "},
		"size":     {"256"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="my_code_.png"`, resp.Header.Get("Content-Disposition"))

	img := decodePNG(t, resp.Body)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, "hello world", scan(t, img))

	entries, err := history.Recent(testContext(t), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello world", entries[0].Text)
	assert.Equal(t, "my_code_.png", entries[0].Filename)
	assert.Equal(t, 256, entries[0].Size)
}

func TestDownloadDefaultFilenameAndClampedSize(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, func(s *api.Server) { s.DefaultFilename = "Default Name" })

	resp := get(t, ts, "/download", url.Values{"text": {"x"}, "size": {"5000"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="default_name.png"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, 2048, decodePNG(t, resp.Body).Bounds().Dx())
}

func TestDownloadTooLong(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := get(t, ts, "/download", url.Values{"text": {strings.Repeat("a", 5000)}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestQRPNGIsInline(t *testing.T) {
	t.Parallel()
	ts, history := newTestServer(t)

	resp := get(t, ts, "/qr.png", url.Values{"text": {"copy me"}, "cw": {"200"}, "ch": {"200"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, 200, decodePNG(t, resp.Body).Bounds().Dx())

	entries, err := history.Recent(testContext(t), 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "copies are not recorded")

	resp = get(t, ts, "/qr.png", url.Values{"text": {""}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func postImage(t *testing.T, ts *httptest.Server, img image.Image, fields map[string]string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if img != nil {
		fw, err := mw.CreateFormFile("image", "qr.png")
		require.NoError(t, err)
		require.NoError(t, png.Encode(fw, img))
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/download", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDownloadImageFallback(t *testing.T) {
	t.Parallel()
	ts, history := newTestServer(t)

	q, err := qrcode.New("from img", qrcode.Medium)
	require.NoError(t, err)

	resp := postImage(t, ts, q.Image(150), map[string]string{
		"filename": "Fallback",
		"size":     "300",
		"text":     "from img",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="fallback.png"`, resp.Header.Get("Content-Disposition"))

	img := decodePNG(t, resp.Body)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, "from img", scan(t, img))

	entries, err := history.Recent(testContext(t), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadImageSizeIsClamped(t *testing.T) {
	t.Parallel()
	ts, history := newTestServer(t)

	q, err := qrcode.New("clamped", qrcode.Medium)
	require.NoError(t, err)

	for _, size := range []string{"4096", "67108864"} {
		resp := postImage(t, ts, q.Image(150), map[string]string{"size": size, "text": "clamped"})
		require.Equal(t, http.StatusOK, resp.StatusCode, size)
		assert.Equal(t, 2048, decodePNG(t, resp.Body).Bounds().Dx(), size)
	}

	entries, err := history.Recent(testContext(t), 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, 2048, entries[0].Size)
}

func TestDownloadImageRejectsOversizedUpload(t *testing.T) {
	t.Parallel()
	ts, history := newTestServer(t)

	q, err := qrcode.New("too big", qrcode.Low)
	require.NoError(t, err)

	resp := postImage(t, ts, q.Image(2100), map[string]string{"text": "too big"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	entries, err := history.Recent(testContext(t), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadImageWithoutImageIsNoop(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := postImage(t, ts, nil, map[string]string{"filename": "x"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestUnknownSession(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	for _, path := range []string{"/qr/data", "/qr.png", "/download"} {
		resp := get(t, ts, path, url.Values{"session": {"does-not-exist"}})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := get(t, ts, "/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, float64(0), body["sessions"])
	assert.Equal(t, true, body["history"])
}

func TestHistoryRoutes(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	get(t, ts, "/download", url.Values{"text": {"wifi password"}, "filename": {"wifi"}})
	get(t, ts, "/download", url.Values{"text": {"https://example.org"}, "filename": {"site"}})

	resp := get(t, ts, "/history", url.Values{"limit": {"1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recent []store.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recent))
	require.Len(t, recent, 1)

	resp = get(t, ts, "/history/search", url.Values{"q": {"wifi"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found []store.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&found))
	require.Len(t, found, 1)
	assert.Equal(t, "wifi.png", found[0].Filename)

	for _, limit := range []string{"0", "-3", "x"} {
		resp = get(t, ts, "/history", url.Values{"limit": {limit}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var all []store.Entry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
		assert.Len(t, all, 2, "limit=%s falls back to the default", limit)
	}

	resp = get(t, ts, "/history/search", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryDisabled(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, func(s *api.Server) { s.Store = nil })

	resp := get(t, ts, "/download", url.Values{"text": {"no history"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, ts, "/history", nil)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(body))
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, func(s *api.Server) {
		s.RateRPS = 0.001
		s.RateBurst = 2
	})

	q := url.Values{"text": {"limited"}}
	assert.Equal(t, http.StatusOK, get(t, ts, "/qr/data", q).StatusCode)
	assert.Equal(t, http.StatusOK, get(t, ts, "/qr/data", q).StatusCode)

	resp := get(t, ts, "/qr/data", q)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// Pages and status are not limited.
	assert.Equal(t, http.StatusOK, get(t, ts, "/status", nil).StatusCode)
}

func TestPage(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := get(t, ts, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	for _, id := range []string{`id="qr-text"`, `id="filename"`, `id="download" disabled`, `id="copy" disabled`, `id="preview-box"`} {
		assert.Contains(t, string(body), id)
	}
}
