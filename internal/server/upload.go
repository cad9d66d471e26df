package server

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"
)

// DefaultMaxUploadBytes is the upload cap used when none is configured.
const DefaultMaxUploadBytes int64 = 1 << 20

// handleUpload stores the raw request body as a new upload-folder entry.
// The destination is opened create-only, so an existing file is never
// touched and concurrent uploads of one name race at the filesystem.
func (s *Server) handleUpload(rs *response, r *http.Request, t Target) {
	ctx := r.Context()
	rid := RequestIDFromContext(ctx)
	start := time.Now()
	limit := s.cfg.MaxUploadBytes

	if t.Index {
		s.metrics.RecordUploadRejected(http.StatusConflict)
		rs.finish(http.StatusConflict, "")
		return
	}

	if r.ContentLength > limit {
		s.metrics.RecordUploadRejected(http.StatusRequestEntityTooLarge)
		rs.closeAfterReply()
		rs.finish(http.StatusRequestEntityTooLarge, "")
		return
	}

	f, err := s.fs.CreateExclusive(t.Path)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			s.metrics.RecordUploadRejected(http.StatusConflict)
			rs.finish(http.StatusConflict, "")
			return
		}
		Error("create upload failed", map[string]any{"request_id": rid, "name": t.Name}, err)
		s.discard(t.Path, rid)
		s.metrics.RecordUploadError()
		rs.finish(http.StatusInternalServerError, "")
		return
	}

	// From here on the file is ours; anything but a clean finish removes it.
	committed := false
	defer func() {
		_ = f.Close()
		if !committed {
			s.discard(t.Path, rid)
		}
	}()

	// The measured count is authoritative: the header may be absent or wrong.
	body := &bodyReader{r: http.MaxBytesReader(rs, r.Body, limit)}
	n, err := io.Copy(f, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			Info("upload over limit", map[string]any{"request_id": rid, "name": t.Name, "limit": limit})
			s.metrics.RecordUploadRejected(http.StatusRequestEntityTooLarge)
			rs.closeAfterReply()
			rs.finish(http.StatusRequestEntityTooLarge, "")
		case body.err != nil:
			// Body cut short: the peer is gone, nobody is left to answer.
			Warn("upload aborted", map[string]any{"request_id": rid, "name": t.Name, "bytes": n, "error": err.Error()})
			s.metrics.RecordUploadAborted()
			rs.abandon()
		default:
			Error("write upload failed", map[string]any{"request_id": rid, "name": t.Name, "bytes": n}, err)
			s.metrics.RecordUploadError()
			rs.finish(http.StatusInternalServerError, "")
		}
		return
	}

	if err := f.Close(); err != nil {
		Error("finalise upload failed", map[string]any{"request_id": rid, "name": t.Name}, err)
		s.metrics.RecordUploadError()
		rs.finish(http.StatusInternalServerError, "")
		return
	}

	committed = true
	s.metrics.RecordUpload(n, time.Since(start))
	rs.finish(http.StatusOK, "OK")
	s.mirror.Put(t.Name, t.Path)
}

// discard removes a partial upload. Failures are logged and otherwise
// ignored; the request context may already be gone, so removal runs under
// its own short deadline.
func (s *Server) discard(path, rid string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.fs.Remove(ctx, path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		Warn("partial upload cleanup failed", map[string]any{"request_id": rid, "path": path, "error": err.Error()})
	}
}

// bodyReader remembers the first read error so a failed copy can be
// blamed on the client or on the disk.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && b.err == nil {
		b.err = err
	}
	return n, err
}
