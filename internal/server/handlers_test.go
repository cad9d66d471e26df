package server

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testIndex = "<html><body>upload form</body></html>"

// newTestServer lays out root/index.html and root/files in a temp dir.
func newTestServer(t *testing.T, mutate ...func(*Config)) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte(testIndex), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}

	cfg := Config{
		Addr:      "127.0.0.1:0",
		Root:      root,
		UploadDir: "files",
		IndexFile: "index.html",
	}
	for _, m := range mutate {
		m(&cfg)
	}

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv, root
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func assertNoContentType(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); ct != "" {
		t.Errorf("error reply carries Content-Type %q", ct)
	}
}

func TestNew_CreatesUploadFolder(t *testing.T) {
	_, root := newTestServer(t)

	info, err := os.Stat(filepath.Join(root, "files"))
	if err != nil {
		t.Fatalf("upload folder missing: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("upload folder is not a directory")
	}
}

func TestGet_Index(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv.Handler(), http.MethodGet, "/", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != testIndex {
		t.Errorf("body = %q, want index", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestGet_MissingIndex(t *testing.T) {
	srv, root := newTestServer(t)
	if err := os.Remove(filepath.Join(root, "index.html")); err != nil {
		t.Fatal(err)
	}

	rr := do(t, srv.Handler(), http.MethodGet, "/", "")

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if rr.Body.String() != "Server Error" {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestGet_IndexIsDirectory(t *testing.T) {
	srv, root := newTestServer(t)
	idx := filepath.Join(root, "index.html")
	if err := os.Remove(idx); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(idx, 0o755); err != nil {
		t.Fatal(err)
	}

	rr := do(t, srv.Handler(), http.MethodGet, "/", "")

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestGet_File(t *testing.T) {
	srv, root := newTestServer(t)
	payload := `{"ok":true}`
	if err := os.WriteFile(filepath.Join(root, "files", "data.json"), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	rr := do(t, srv.Handler(), http.MethodGet, "/data.json", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != payload {
		t.Errorf("body = %q", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestGet_EmptyFileUnknownExtension(t *testing.T) {
	srv, root := newTestServer(t)
	if err := os.WriteFile(filepath.Join(root, "files", "blob.zzq"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	rr := do(t, srv.Handler(), http.MethodGet, "/blob.zzq", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("expected empty body, got %d bytes", rr.Body.Len())
	}
	if ct := rr.Header().Get("Content-Type"); ct != fallbackContentType {
		t.Errorf("Content-Type = %q, want %q", ct, fallbackContentType)
	}
}

func TestGet_NotFound(t *testing.T) {
	srv, root := newTestServer(t)
	if err := os.Mkdir(filepath.Join(root, "files", "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	for _, target := range []string{"/nope.txt", "/subdir"} {
		rr := do(t, srv.Handler(), http.MethodGet, target, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", target, rr.Code)
		}
		if rr.Body.String() != "File not found" {
			t.Errorf("GET %s: body = %q", target, rr.Body.String())
		}
		assertNoContentType(t, rr)
	}
}

func TestGet_RootFilesNotReachable(t *testing.T) {
	srv, root := newTestServer(t)
	if err := os.WriteFile(filepath.Join(root, "secret.txt"), []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Only the upload folder is addressable by name.
	rr := do(t, srv.Handler(), http.MethodGet, "/secret.txt", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestBadPaths(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodPut} {
		for _, target := range []string{"/..", "/..%2Findex.html", "/a%2Fb", "/a%00b", "/dir/file.txt"} {
			rr := do(t, srv.Handler(), method, target, "")
			if rr.Code != http.StatusBadRequest {
				t.Errorf("%s %s: expected 400, got %d", method, target, rr.Code)
			}
			if rr.Body.String() != "Bad Request" {
				t.Errorf("%s %s: body = %q", method, target, rr.Body.String())
			}
		}
	}

	if got := srv.Metrics().Snapshot().ForbiddenPathsTotal; got != 20 {
		t.Errorf("ForbiddenPathsTotal = %d, want 20", got)
	}
}

func TestUndecodablePaths(t *testing.T) {
	srv, root := newTestServer(t)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodPut} {
		for _, target := range []string{"/%ff", "/%ff%fe"} {
			rr := do(t, srv.Handler(), method, target, "x")
			if rr.Code != http.StatusBadRequest {
				t.Errorf("%s %s: expected 400, got %d", method, target, rr.Code)
			}
			if rr.Body.String() != "Bad Request" {
				t.Errorf("%s %s: body = %q", method, target, rr.Body.String())
			}
		}
	}

	if got := srv.Metrics().Snapshot().MalformedPathsTotal; got != 8 {
		t.Errorf("MalformedPathsTotal = %d, want 8", got)
	}
	entries, err := os.ReadDir(filepath.Join(root, "files"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("upload folder holds %d entries, want none", len(entries))
	}
}

func TestUnsupportedMethods(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodHead, http.MethodOptions} {
		rr := do(t, srv.Handler(), method, "/a.txt", "")
		if rr.Code != http.StatusBadGateway {
			t.Errorf("%s: expected 502, got %d", method, rr.Code)
		}
		if method != http.MethodHead && rr.Body.String() != "Not implemented" {
			t.Errorf("%s: body = %q", method, rr.Body.String())
		}
	}
}

func TestUpload_CreateThenConflict(t *testing.T) {
	srv, root := newTestServer(t)
	h := srv.Handler()

	rr := do(t, h, http.MethodPost, "/notes.txt", "first version")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rr.Body.String())
	}

	rr = do(t, h, http.MethodPost, "/notes.txt", "second version")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("409 body = %q, want empty", rr.Body.String())
	}

	got, err := os.ReadFile(filepath.Join(root, "files", "notes.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "first version" {
		t.Errorf("stored content = %q, conflict must not overwrite", got)
	}

	snap := srv.Metrics().Snapshot()
	if snap.UploadsTotal != 1 || snap.UploadConflictsTotal != 1 {
		t.Errorf("uploads=%d conflicts=%d, want 1/1", snap.UploadsTotal, snap.UploadConflictsTotal)
	}
}

func TestUpload_EmptyBody(t *testing.T) {
	srv, root := newTestServer(t)

	rr := do(t, srv.Handler(), http.MethodPost, "/empty.bin", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	info, err := os.Stat(filepath.Join(root, "files", "empty.bin"))
	if err != nil {
		t.Fatalf("empty upload not stored: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
}

func TestUpload_EncodedName(t *testing.T) {
	srv, root := newTestServer(t)
	h := srv.Handler()

	rr := do(t, h, http.MethodPost, "/hello%20world.txt", "hi")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if _, err := os.Stat(filepath.Join(root, "files", "hello world.txt")); err != nil {
		t.Fatalf("decoded name not stored: %v", err)
	}

	rr = do(t, h, http.MethodGet, "/hello%20world.txt", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "hi" {
		t.Errorf("GET after upload: %d %q", rr.Code, rr.Body.String())
	}
}

func TestUpload_Index(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv.Handler(), http.MethodPost, "/", "replace me")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestUpload_DeclaredTooLarge(t *testing.T) {
	srv, root := newTestServer(t, func(c *Config) { c.MaxUploadBytes = 8 })

	rr := do(t, srv.Handler(), http.MethodPost, "/big.bin", "0123456789")
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("413 body = %q, want empty", rr.Body.String())
	}
	if _, err := os.Stat(filepath.Join(root, "files", "big.bin")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("rejected upload left a file behind: %v", err)
	}
}

func TestUpload_MeasuredTooLarge(t *testing.T) {
	srv, root := newTestServer(t, func(c *Config) { c.MaxUploadBytes = 8 })

	req := httptest.NewRequest(http.MethodPost, "/big.bin", strings.NewReader("0123456789"))
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	if _, err := os.Stat(filepath.Join(root, "files", "big.bin")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("partial upload left behind: %v", err)
	}
	if got := srv.Metrics().Snapshot().UploadTooLargeTotal; got != 1 {
		t.Errorf("UploadTooLargeTotal = %d, want 1", got)
	}
}

func TestUpload_ExactlyAtLimit(t *testing.T) {
	srv, root := newTestServer(t, func(c *Config) { c.MaxUploadBytes = 8 })

	rr := do(t, srv.Handler(), http.MethodPost, "/fits.bin", "01234567")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	got, err := os.ReadFile(filepath.Join(root, "files", "fits.bin"))
	if err != nil || string(got) != "01234567" {
		t.Errorf("stored = %q, %v", got, err)
	}
}

func TestDelete(t *testing.T) {
	srv, root := newTestServer(t)
	h := srv.Handler()
	path := filepath.Join(root, "files", "old.log")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	rr := do(t, h, http.MethodDelete, "/old.log", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Fatalf("DELETE: %d %q", rr.Code, rr.Body.String())
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("file still present: %v", err)
	}

	rr = do(t, h, http.MethodDelete, "/old.log", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second DELETE: expected 404, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/old.log", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("GET after DELETE: expected 404, got %d", rr.Code)
	}
}

func TestDelete_IndexAndDirectory(t *testing.T) {
	srv, root := newTestServer(t)
	if err := os.Mkdir(filepath.Join(root, "files", "keep"), 0o755); err != nil {
		t.Fatal(err)
	}

	for _, target := range []string{"/", "/keep"} {
		rr := do(t, srv.Handler(), http.MethodDelete, target, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("DELETE %s: expected 404, got %d", target, rr.Code)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "index.html")); err != nil {
		t.Errorf("index removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "files", "keep")); err != nil {
		t.Errorf("directory removed: %v", err)
	}
}

func TestCommonHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-Id"); got != "req-123" {
		t.Errorf("X-Request-Id = %q, want req-123", got)
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}

	rr = do(t, srv.Handler(), http.MethodGet, "/", "")
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("request id not generated")
	}
}

func TestRateLimitedServer(t *testing.T) {
	srv, _ := newTestServer(t, func(c *Config) { c.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		if rr := do(t, srv.Handler(), http.MethodGet, "/", ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
	if rr := do(t, srv.Handler(), http.MethodGet, "/", ""); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}

// faultyFS fails selected operations on top of the real filesystem.
type faultyFS struct {
	osFileSystem
	removeErr error
	createErr error
}

func (f faultyFS) Remove(ctx context.Context, name string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.osFileSystem.Remove(ctx, name)
}

func (f faultyFS) CreateExclusive(name string) (*os.File, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.osFileSystem.CreateExclusive(name)
}

func TestDelete_RemoveFails(t *testing.T) {
	srv, root := newTestServer(t)
	srv.fs = faultyFS{removeErr: fs.ErrPermission}
	if err := os.WriteFile(filepath.Join(root, "files", "locked.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	rr := do(t, srv.Handler(), http.MethodDelete, "/locked.txt", "")

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if rr.Body.String() != "Server Error" {
		t.Errorf("body = %q", rr.Body.String())
	}
	assertNoContentType(t, rr)
	if got := srv.Metrics().Snapshot().DeleteErrorsTotal; got != 1 {
		t.Errorf("DeleteErrorsTotal = %d, want 1", got)
	}
}

func TestUpload_CreateFails(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.fs = faultyFS{createErr: fs.ErrPermission}

	rr := do(t, srv.Handler(), http.MethodPost, "/denied.txt", "data")

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if got := srv.Metrics().Snapshot().UploadErrorsTotal; got != 1 {
		t.Errorf("UploadErrorsTotal = %d, want 1", got)
	}
}

func TestRequestMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	do(t, h, http.MethodGet, "/", "")
	do(t, h, http.MethodGet, "/missing", "")
	do(t, h, http.MethodPut, "/x", "")

	snap := srv.Metrics().Snapshot()
	if snap.RequestsTotal != 3 {
		t.Errorf("RequestsTotal = %d, want 3", snap.RequestsTotal)
	}
	if snap.RequestErrors4xx != 1 || snap.RequestErrors5xx != 1 {
		t.Errorf("4xx=%d 5xx=%d, want 1/1", snap.RequestErrors4xx, snap.RequestErrors5xx)
	}
	if snap.DownloadsTotal != 1 || snap.UnsupportedMethodsTotal != 1 {
		t.Errorf("downloads=%d unsupported=%d", snap.DownloadsTotal, snap.UnsupportedMethodsTotal)
	}
}
