package server

import (
	"net/http"
	"sync"
	"time"
)

// Metrics holds application metrics
type Metrics struct {
	mu sync.RWMutex

	// Upload metrics
	uploadsTotal         int64
	uploadBytesTotal     int64
	uploadDurationTotal  time.Duration
	uploadConflictsTotal int64
	uploadTooLargeTotal  int64
	uploadAbortedTotal   int64
	uploadErrorsTotal    int64

	// Download metrics
	downloadsTotal        int64
	downloadBytesTotal    int64
	downloadErrorsTotal   int64
	downloadDurationTotal time.Duration

	// Delete metrics
	deletesTotal      int64
	deleteErrorsTotal int64

	// Routing metrics
	malformedPathsTotal     int64
	forbiddenPathsTotal     int64
	unsupportedMethodsTotal int64

	// Mirror metrics
	mirrorErrorsTotal int64

	// System metrics
	requestsTotal    int64
	requestErrors5xx int64
	requestErrors4xx int64
	requestsAborted  int64
}

// NewMetrics returns an empty metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordUpload records a successful upload
func (m *Metrics) RecordUpload(bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadsTotal++
	m.uploadBytesTotal += bytes
	m.uploadDurationTotal += duration
}

// RecordUploadRejected records an upload refused with 409 or 413.
func (m *Metrics) RecordUploadRejected(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch status {
	case http.StatusConflict:
		m.uploadConflictsTotal++
	case http.StatusRequestEntityTooLarge:
		m.uploadTooLargeTotal++
	}
}

// RecordUploadAborted records an upload abandoned by the peer.
func (m *Metrics) RecordUploadAborted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadAbortedTotal++
}

// RecordUploadError records an upload that failed on the server side
func (m *Metrics) RecordUploadError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErrorsTotal++
}

// RecordDownload records a successful download
func (m *Metrics) RecordDownload(bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadsTotal++
	m.downloadBytesTotal += bytes
	m.downloadDurationTotal += duration
}

// RecordDownloadError records a download error
func (m *Metrics) RecordDownloadError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadErrorsTotal++
}

// RecordDelete records a successful delete
func (m *Metrics) RecordDelete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletesTotal++
}

// RecordDeleteError records a delete that failed after the target was found
func (m *Metrics) RecordDeleteError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErrorsTotal++
}

// RecordRejectedPath records a request refused by the path resolver.
// kind is "malformed" or "forbidden".
func (m *Metrics) RecordRejectedPath(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == "malformed" {
		m.malformedPathsTotal++
		return
	}
	m.forbiddenPathsTotal++
}

// RecordUnsupportedMethod records a request with a verb other than GET, POST or DELETE
func (m *Metrics) RecordUnsupportedMethod() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsupportedMethodsTotal++
}

// RecordMirrorError records a failed object-store mirror operation
func (m *Metrics) RecordMirrorError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrorErrorsTotal++
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++

	switch {
	case statusCode == StatusAborted:
		m.requestsAborted++
	case statusCode >= 500:
		m.requestErrors5xx++
	case statusCode >= 400:
		m.requestErrors4xx++
	}
}

// Snapshot returns a snapshot of current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		UploadsTotal:            m.uploadsTotal,
		UploadBytesTotal:        m.uploadBytesTotal,
		UploadAvgDurationMs:     avgDuration(m.uploadDurationTotal, m.uploadsTotal),
		UploadConflictsTotal:    m.uploadConflictsTotal,
		UploadTooLargeTotal:     m.uploadTooLargeTotal,
		UploadAbortedTotal:      m.uploadAbortedTotal,
		UploadErrorsTotal:       m.uploadErrorsTotal,
		DownloadsTotal:          m.downloadsTotal,
		DownloadBytesTotal:      m.downloadBytesTotal,
		DownloadErrorsTotal:     m.downloadErrorsTotal,
		DownloadAvgDurationMs:   avgDuration(m.downloadDurationTotal, m.downloadsTotal),
		DeletesTotal:            m.deletesTotal,
		DeleteErrorsTotal:       m.deleteErrorsTotal,
		MalformedPathsTotal:     m.malformedPathsTotal,
		ForbiddenPathsTotal:     m.forbiddenPathsTotal,
		UnsupportedMethodsTotal: m.unsupportedMethodsTotal,
		MirrorErrorsTotal:       m.mirrorErrorsTotal,
		RequestsTotal:           m.requestsTotal,
		RequestErrors5xx:        m.requestErrors5xx,
		RequestErrors4xx:        m.requestErrors4xx,
		RequestsAborted:         m.requestsAborted,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	// Upload metrics
	UploadsTotal         int64   `json:"uploads_total"`
	UploadBytesTotal     int64   `json:"upload_bytes_total"`
	UploadAvgDurationMs  float64 `json:"upload_avg_duration_ms"`
	UploadConflictsTotal int64   `json:"upload_conflicts_total"`
	UploadTooLargeTotal  int64   `json:"upload_too_large_total"`
	UploadAbortedTotal   int64   `json:"upload_aborted_total"`
	UploadErrorsTotal    int64   `json:"upload_errors_total"`

	// Download metrics
	DownloadsTotal        int64   `json:"downloads_total"`
	DownloadBytesTotal    int64   `json:"download_bytes_total"`
	DownloadErrorsTotal   int64   `json:"download_errors_total"`
	DownloadAvgDurationMs float64 `json:"download_avg_duration_ms"`

	// Delete metrics
	DeletesTotal      int64 `json:"deletes_total"`
	DeleteErrorsTotal int64 `json:"delete_errors_total"`

	// Routing metrics
	MalformedPathsTotal     int64 `json:"malformed_paths_total"`
	ForbiddenPathsTotal     int64 `json:"forbidden_paths_total"`
	UnsupportedMethodsTotal int64 `json:"unsupported_methods_total"`

	MirrorErrorsTotal int64 `json:"mirror_errors_total"`

	// System metrics
	RequestsTotal    int64 `json:"requests_total"`
	RequestErrors5xx int64 `json:"request_errors_5xx"`
	RequestErrors4xx int64 `json:"request_errors_4xx"`
	RequestsAborted  int64 `json:"requests_aborted"`
}

func avgDuration(total time.Duration, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total.Milliseconds()) / float64(count)
}
