package server

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"
)

const fallbackContentType = "application/octet-stream"

// contentTypeFor infers the media type from the file name extension.
func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return fallbackContentType
}

// handleGet streams the index document or an upload-folder entry to the
// client. Non-index targets must exist as regular files.
func (s *Server) handleGet(rs *response, r *http.Request, t Target) {
	ctx := r.Context()
	start := time.Now()

	if !t.Index {
		info, err := s.fs.Stat(ctx, t.Path)
		if err != nil || !info.Mode().IsRegular() {
			rs.finish(http.StatusNotFound, "")
			return
		}
	}

	f, err := s.fs.Open(t.Path)
	if err != nil {
		Error("open for read failed", map[string]any{"request_id": RequestIDFromContext(ctx), "name": t.Name}, err)
		s.metrics.RecordDownloadError()
		rs.finish(http.StatusInternalServerError, "")
		return
	}
	defer func() { _ = f.Close() }()

	rs.Header().Set("Content-Type", contentTypeFor(t.Path))

	n, err := io.Copy(rs, f)
	if err != nil {
		if ctx.Err() != nil {
			// Peer went away; closing the file is all that is left to do.
			Debug("download abandoned by peer", map[string]any{"request_id": RequestIDFromContext(ctx), "name": t.Name, "bytes": n})
			rs.abandon()
		}
		Error("download stream failed", map[string]any{"request_id": RequestIDFromContext(ctx), "name": t.Name, "bytes": n}, err)
		s.metrics.RecordDownloadError()
		if rs.headersSent() {
			// Status is already on the wire; cut the body short instead.
			rs.abandon()
		}
		rs.finish(http.StatusInternalServerError, "")
		return
	}

	// Empty files still need the status line and their media type.
	rs.WriteHeader(http.StatusOK)
	s.metrics.RecordDownload(n, time.Since(start))
	rs.finish(http.StatusOK, "")
}
