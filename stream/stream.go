// Package stream serves media files over HTTP with byte-range support.
package stream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"tvremote/logger"
)

// DefaultOpenRangeWindow is how much of the file a "bytes=N-" request gets.
const DefaultOpenRangeWindow int64 = 1 << 20

var errUnsatisfiable = errors.New("range not satisfiable")

// Server streams files from an afero filesystem.
type Server struct {
	fs     afero.Fs
	window int64
}

// New creates a Server. openRangeWindow caps open-ended range requests; zero
// serves them to the end of the file.
func New(fs afero.Fs, openRangeWindow int64) *Server {
	return &Server{fs: fs, window: openRangeWindow}
}

// ServeFile writes the file at name, or the byte window named by the Range
// header, to w.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, name string) {
	log := logger.Ctx(r.Context())

	fi, err := s.fs.Stat(name)
	if err != nil || !fi.Mode().IsRegular() {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	size := fi.Size()

	h := w.Header()
	h.Set("Content-Type", ContentType(name))
	h.Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		s.copy(w, r, name, 0, size, http.StatusOK)
		return
	}

	start, end, err := ParseRange(rangeHeader, size, s.window)
	if err != nil {
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Requested range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		log.Debug().Str("range", rangeHeader).Int64("size", size).Msg("unsatisfiable range")
		return
	}

	length := end - start + 1
	h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	s.copy(w, r, name, start, length, http.StatusPartialContent)
}

// copy opens the file only for the duration of the write.
func (s *Server) copy(w http.ResponseWriter, r *http.Request, name string, offset, length int64, status int) {
	log := logger.Ctx(r.Context())

	f, err := s.fs.Open(name)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			log.Error().Err(err).Str("file", name).Msg("seek failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if n, err := io.CopyN(w, f, length); err != nil {
		// Usually the client went away mid-stream.
		log.Debug().Err(err).Str("file", name).Int64("written", n).Int64("want", length).Msg("stream aborted")
	}
}

// ParseRange interprets a Range header against a file of the given size.
// Only the first range of a list is honoured. A missing start means 0; a
// missing end means start+window-1 (or end of file when window is zero).
// Both bounds are clamped to the file.
func ParseRange(header string, size, window int64) (start, end int64, err error) {
	ranges, ok := strings.CutPrefix(header, "bytes=")
	if !ok || size <= 0 {
		return 0, 0, errUnsatisfiable
	}
	if i := strings.IndexByte(ranges, ','); i >= 0 {
		ranges = ranges[:i]
	}
	startStr, endStr, _ := strings.Cut(ranges, "-")

	start, err = strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil {
		start = 0
	}
	end, err = strconv.ParseInt(strings.TrimSpace(endStr), 10, 64)
	if err != nil {
		if window > 0 {
			end = start + window - 1
		} else {
			end = size - 1
		}
	}

	start = max(start, 0)
	end = min(end, size-1)
	if start > end {
		return 0, 0, errUnsatisfiable
	}
	return start, end, nil
}
