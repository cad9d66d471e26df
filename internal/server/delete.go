package server

import (
	"net/http"
)

// handleDelete removes an existing regular file from the upload folder.
// The index document is never a delete target.
func (s *Server) handleDelete(rs *response, r *http.Request, t Target) {
	ctx := r.Context()

	if t.Index {
		rs.finish(http.StatusNotFound, "")
		return
	}

	info, err := s.fs.Stat(ctx, t.Path)
	if err != nil || !info.Mode().IsRegular() {
		rs.finish(http.StatusNotFound, "")
		return
	}

	if err := s.fs.Remove(ctx, t.Path); err != nil {
		Error("delete failed", map[string]any{"request_id": RequestIDFromContext(ctx), "name": t.Name}, err)
		s.metrics.RecordDeleteError()
		rs.finish(http.StatusInternalServerError, "")
		return
	}

	s.metrics.RecordDelete()
	rs.finish(http.StatusOK, "OK")
	s.mirror.Remove(t.Name)
}
