package stream

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T, name string, size int) (*Server, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, name, data, 0o644))
	return New(fs, DefaultOpenRangeWindow), data
}

func serve(s *Server, method, name, rangeHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/videos/x/"+name, nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()
	s.ServeFile(rec, req, name)
	return rec
}

func TestFullFile(t *testing.T) {
	s, data := fixture(t, "/m/clip.webm", 1000)

	rec := serve(s, http.MethodGet, "/m/clip.webm", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/webm", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, data, rec.Body.Bytes())
}

func TestClosedRange(t *testing.T) {
	s, data := fixture(t, "/m/clip.mp4", 1000)

	rec := serve(s, http.MethodGet, "/m/clip.mp4", "bytes=0-99")
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-99/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, data[:100], rec.Body.Bytes())
}

func TestOpenRangeIsCappedToWindow(t *testing.T) {
	s, data := fixture(t, "/m/big.mp4", 3<<20)

	rec := serve(s, http.MethodGet, "/m/big.mp4", "bytes=500-")
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 500-1049075/3145728", rec.Header().Get("Content-Range"))
	assert.Equal(t, "1048576", rec.Header().Get("Content-Length"))
	assert.True(t, bytes.Equal(data[500:1049076], rec.Body.Bytes()))
}

func TestOpenRangeNearEnd(t *testing.T) {
	s, data := fixture(t, "/m/clip.ogg", 1000)

	rec := serve(s, http.MethodGet, "/m/clip.ogg", "bytes=900-")
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 900-999/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, data[900:], rec.Body.Bytes())
}

func TestEndIsClamped(t *testing.T) {
	s, data := fixture(t, "/m/clip.mp4", 1000)

	rec := serve(s, http.MethodGet, "/m/clip.mp4", "bytes=990-5000")
	assert.Equal(t, "bytes 990-999/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, data[990:], rec.Body.Bytes())
}

func TestBadRangeUnit(t *testing.T) {
	s, _ := fixture(t, "/m/clip.mp4", 1000)

	rec := serve(s, http.MethodGet, "/m/clip.mp4", "items=0-10")
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)

	rec = serve(s, http.MethodGet, "/m/clip.mp4", "bytes=2000-")
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */1000", rec.Header().Get("Content-Range"))
}

func TestNotFound(t *testing.T) {
	s, _ := fixture(t, "/m/clip.mp4", 10)

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/m/other.mp4", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/m", "").Code)
}

func TestHeadWritesNoBody(t *testing.T) {
	s, _ := fixture(t, "/m/clip.mp4", 1000)

	rec := serve(s, http.MethodHead, "/m/clip.mp4", "bytes=0-9")
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
	assert.Zero(t, rec.Body.Len())
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header     string
		window     int64
		start, end int64
		ok         bool
	}{
		{"bytes=0-99", 1 << 20, 0, 99, true},
		{"bytes=-99", 1 << 20, 0, 99, true},
		{"bytes=10-", 0, 10, 999, true},
		{"bytes=10-", 100, 10, 109, true},
		{"bytes=abc-5", 100, 0, 5, true},
		{"bytes=0-1,5-6", 100, 0, 1, true},
		{"bytes=50-10", 100, 0, 0, false},
		{"Bytes=0-1", 100, 0, 0, false},
		{"", 100, 0, 0, false},
	}
	for _, tt := range tests {
		start, end, err := ParseRange(tt.header, 1000, tt.window)
		if !tt.ok {
			assert.Error(t, err, tt.header)
			continue
		}
		require.NoError(t, err, tt.header)
		assert.Equal(t, tt.start, start, tt.header)
		assert.Equal(t, tt.end, end, tt.header)
	}

	_, _, err := ParseRange("bytes=0-", 0, 100)
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", ContentType("A.MP4"))
	assert.Equal(t, "video/ogg", ContentType("a.ogg"))
	assert.Equal(t, "application/octet-stream", ContentType("a.bin"))
	assert.Equal(t, "application/octet-stream", ContentType("noext"))
}
