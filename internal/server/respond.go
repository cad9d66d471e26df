// respond.go - Single-shot response finalisation for the file handlers.
package server

import (
	"net/http"
)

// reasons holds the default body for codes finalised without a message.
var reasons = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusNotFound:            "File not found",
	http.StatusInternalServerError: "Server Error",
	http.StatusBadGateway:          "Not implemented",
}

// response wraps the writer of one request. It remembers whether the
// status line has been committed and guarantees finish runs once.
type response struct {
	http.ResponseWriter
	wroteHeader bool
	finished    bool
}

func newResponse(w http.ResponseWriter) *response {
	return &response{ResponseWriter: w}
}

func (r *response) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *response) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// headersSent reports whether the status is already committed.
func (r *response) headersSent() bool { return r.wroteHeader }

// closeAfterReply disables keep-alive for this connection.
func (r *response) closeAfterReply() {
	if !r.wroteHeader {
		r.Header().Set("Connection", "close")
	}
}

// finish sets code (unless headers are out already) and ends the response
// with msg, or with the default reason for code when msg is empty. Once
// headers are committed the body is left untouched.
func (r *response) finish(code int, msg string) {
	if r.finished {
		return
	}
	r.finished = true

	if r.wroteHeader {
		return
	}
	if msg == "" {
		msg = reasons[code]
	}

	h := r.Header()
	// Error replies never describe a file.
	h["Content-Type"] = nil
	h.Del("Content-Length")
	r.WriteHeader(code)
	if msg != "" {
		_, _ = r.Write([]byte(msg))
	}
}

// abandon drops the connection without a reply. Used when the peer is
// already gone or a streamed body was cut short.
func (r *response) abandon() {
	r.finished = true
	panic(http.ErrAbortHandler)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *response) Unwrap() http.ResponseWriter { return r.ResponseWriter }
