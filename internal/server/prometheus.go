// prometheus.go - Prometheus metrics exporter
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// metricsHandler serves the metrics snapshot in the Prometheus text format.
func (s *Server) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snap := s.metrics.Snapshot()
		var out strings.Builder

		out.WriteString("# HELP ffs_info Application version info\n")
		out.WriteString("# TYPE ffs_info gauge\n")
		fmt.Fprintf(&out, "ffs_info{version=\"%s\",commit=\"%s\"} 1\n\n",
			prometheusLabel(s.cfg.Build.Version), prometheusLabel(s.cfg.Build.Commit))

		writeCounter(&out, "ffs_requests_total", "Total number of HTTP requests", snap.RequestsTotal)
		writeCounter(&out, "ffs_requests_aborted_total", "Requests dropped without a response", snap.RequestsAborted)

		out.WriteString("# HELP ffs_request_errors_total Error responses by class\n")
		out.WriteString("# TYPE ffs_request_errors_total counter\n")
		fmt.Fprintf(&out, "ffs_request_errors_total{class=\"4xx\"} %d\n", snap.RequestErrors4xx)
		fmt.Fprintf(&out, "ffs_request_errors_total{class=\"5xx\"} %d\n\n", snap.RequestErrors5xx)

		writeCounter(&out, "ffs_uploads_total", "Total number of stored uploads", snap.UploadsTotal)
		writeCounter(&out, "ffs_upload_bytes_total", "Bytes stored by uploads", snap.UploadBytesTotal)

		out.WriteString("# HELP ffs_upload_rejections_total Uploads refused or lost, by reason\n")
		out.WriteString("# TYPE ffs_upload_rejections_total counter\n")
		fmt.Fprintf(&out, "ffs_upload_rejections_total{reason=\"conflict\"} %d\n", snap.UploadConflictsTotal)
		fmt.Fprintf(&out, "ffs_upload_rejections_total{reason=\"too_large\"} %d\n", snap.UploadTooLargeTotal)
		fmt.Fprintf(&out, "ffs_upload_rejections_total{reason=\"aborted\"} %d\n", snap.UploadAbortedTotal)
		fmt.Fprintf(&out, "ffs_upload_rejections_total{reason=\"error\"} %d\n\n", snap.UploadErrorsTotal)

		writeCounter(&out, "ffs_downloads_total", "Total number of file downloads", snap.DownloadsTotal)
		writeCounter(&out, "ffs_download_bytes_total", "Bytes served by downloads", snap.DownloadBytesTotal)
		writeCounter(&out, "ffs_download_errors_total", "Downloads that failed mid-stream", snap.DownloadErrorsTotal)

		writeCounter(&out, "ffs_deletes_total", "Total number of deleted files", snap.DeletesTotal)
		writeCounter(&out, "ffs_delete_errors_total", "Deletes that failed after the file was found", snap.DeleteErrorsTotal)

		out.WriteString("# HELP ffs_rejected_paths_total Requests refused by the path resolver\n")
		out.WriteString("# TYPE ffs_rejected_paths_total counter\n")
		fmt.Fprintf(&out, "ffs_rejected_paths_total{kind=\"malformed\"} %d\n", snap.MalformedPathsTotal)
		fmt.Fprintf(&out, "ffs_rejected_paths_total{kind=\"forbidden\"} %d\n\n", snap.ForbiddenPathsTotal)

		writeCounter(&out, "ffs_unsupported_methods_total", "Requests with an unsupported method", snap.UnsupportedMethodsTotal)
		writeCounter(&out, "ffs_mirror_errors_total", "Failed object-store mirror operations", snap.MirrorErrorsTotal)

		out.WriteString("# HELP ffs_mirror_circuit_open Whether mirror jobs are being skipped\n")
		out.WriteString("# TYPE ffs_mirror_circuit_open gauge\n")
		circuitOpen := 0
		if s.mirror.CircuitState() != StateClosed {
			circuitOpen = 1
		}
		fmt.Fprintf(&out, "ffs_mirror_circuit_open %d\n\n", circuitOpen)

		out.WriteString("# HELP ffs_uptime_seconds Application uptime in seconds\n")
		out.WriteString("# TYPE ffs_uptime_seconds counter\n")
		fmt.Fprintf(&out, "ffs_uptime_seconds %.0f\n", time.Since(s.started).Seconds())

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out.String()))
	}
}

func writeCounter(out *strings.Builder, name, help string, v int64) {
	fmt.Fprintf(out, "# HELP %s %s\n", name, help)
	fmt.Fprintf(out, "# TYPE %s counter\n", name)
	fmt.Fprintf(out, "%s %d\n\n", name, v)
}

// Helper function to format label safely for Prometheus
func prometheusLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return value
}
