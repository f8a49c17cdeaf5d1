package middleware

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// minCompressSize is the smallest body worth compressing. Smaller
// responses are written as is.
const minCompressSize = 1024

var (
	brPool = sync.Pool{New: func() any { return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression) }}
	gzPool = sync.Pool{New: func() any {
		gz, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return gz
	}}
)

type encoder interface {
	io.WriteCloser
	Reset(io.Writer)
}

// negotiateEncoding picks br over gzip when both are acceptable. q=0 rules
// an encoding out.
func negotiateEncoding(header string) string {
	var br, gz bool
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				continue
			}
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "br":
			br = true
		case "gzip", "*":
			gz = true
		}
	}
	switch {
	case br:
		return "br"
	case gz:
		return "gzip"
	}
	return ""
}

// compressWriter buffers up to minCompressSize bytes before deciding
// whether to compress.
type compressWriter struct {
	http.ResponseWriter
	encoding string
	status   int
	buf      []byte
	enc      encoder
	decided  bool
}

func (w *compressWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.decided {
		if w.enc != nil {
			return w.enc.Write(b)
		}
		return w.ResponseWriter.Write(b)
	}
	w.buf = append(w.buf, b...)
	if len(w.buf) >= minCompressSize {
		if err := w.start(true); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

func (w *compressWriter) start(compress bool) error {
	w.decided = true
	h := w.Header()
	if compress && h.Get("Content-Encoding") == "" && w.status != http.StatusNoContent && w.status != http.StatusNotModified {
		if w.encoding == "br" {
			w.enc = brPool.Get().(*brotli.Writer)
		} else {
			w.enc = gzPool.Get().(*gzip.Writer)
		}
		w.enc.Reset(w.ResponseWriter)
		h.Set("Content-Encoding", w.encoding)
		h.Del("Content-Length")
	}
	w.ResponseWriter.WriteHeader(w.status)
	if len(w.buf) == 0 {
		return nil
	}
	var err error
	if w.enc != nil {
		_, err = w.enc.Write(w.buf)
	} else {
		_, err = w.ResponseWriter.Write(w.buf)
	}
	w.buf = nil
	return err
}

func (w *compressWriter) Flush() {
	if !w.decided {
		if w.status == 0 {
			w.status = http.StatusOK
		}
		_ = w.start(true)
	}
	if f, ok := w.enc.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *compressWriter) finish() {
	if !w.decided {
		if w.status == 0 {
			w.status = http.StatusOK
		}
		_ = w.start(false)
	}
	if w.enc == nil {
		return
	}
	_ = w.enc.Close()
	w.enc.Reset(io.Discard)
	switch e := w.enc.(type) {
	case *brotli.Writer:
		brPool.Put(e)
	case *gzip.Writer:
		gzPool.Put(e)
	}
}

// Compress encodes responses with brotli or gzip according to the
// client's Accept-Encoding. Websocket upgrades and HEAD requests pass
// through untouched.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")
		encoding := negotiateEncoding(r.Header.Get("Accept-Encoding"))
		if encoding == "" || r.Method == http.MethodHead || r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}

		cw := &compressWriter{ResponseWriter: w, encoding: encoding}
		defer cw.finish()
		next.ServeHTTP(cw, r)
	})
}
