package server

import (
	"errors"
	"net/http"
)

// fileHandler dispatches file-store requests by method after the path has
// been resolved. Requests with a bad path never reach a verb handler.
func (s *Server) fileHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs := newResponse(w)

		target, err := s.resolver.Resolve(r.URL.EscapedPath())
		if err != nil {
			if errors.Is(err, ErrMalformedPath) {
				s.metrics.RecordRejectedPath("malformed")
			} else {
				s.metrics.RecordRejectedPath("forbidden")
			}
			rs.finish(http.StatusBadRequest, "")
			return
		}
		setOutcomeName(r.Context(), target.Name)

		switch r.Method {
		case http.MethodGet:
			s.handleGet(rs, r, target)
		case http.MethodPost:
			s.handleUpload(rs, r, target)
		case http.MethodDelete:
			s.handleDelete(rs, r, target)
		default:
			// Unsupported verbs answer 502, not 405.
			s.metrics.RecordUnsupportedMethod()
			rs.finish(http.StatusBadGateway, "")
		}
	})
}
