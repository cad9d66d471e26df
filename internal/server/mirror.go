// mirror.go - Copies upload-folder changes to an object-store bucket.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

const (
	mirrorQueueSize = 256

	mirrorMaxFailures = 5
	mirrorCooldown    = 30 * time.Second
)

type mirrorOp int

const (
	mirrorPut mirrorOp = iota
	mirrorRemove
)

type mirrorJob struct {
	op   mirrorOp
	name string
	path string
}

// Mirror replays successful uploads and deletes against a bucket. The
// filesystem stays the source of truth: failures are logged and counted,
// never reported to clients. Jobs run in submission order on one worker.
// While the bucket keeps failing, jobs are dropped without being tried.
type Mirror struct {
	client  *minio.Client
	bucket  string
	metrics *Metrics
	breaker *circuitBreaker
	queue   chan mirrorJob
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewMirror starts the mirror worker. A nil client yields a nil Mirror, on
// which every method is a no-op.
func NewMirror(client *minio.Client, bucket string, metrics *Metrics) *Mirror {
	if client == nil {
		return nil
	}
	m := &Mirror{
		client:  client,
		bucket:  bucket,
		metrics: metrics,
		breaker: newCircuitBreaker("mirror", mirrorMaxFailures, mirrorCooldown),
		queue:   make(chan mirrorJob, mirrorQueueSize),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// Put schedules an upload of the file at path under object key name.
func (m *Mirror) Put(name, path string) {
	m.enqueue(mirrorJob{op: mirrorPut, name: name, path: path})
}

// Remove schedules removal of object key name.
func (m *Mirror) Remove(name string) {
	m.enqueue(mirrorJob{op: mirrorRemove, name: name})
}

// Close stops accepting jobs and waits for queued ones to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Bucket returns the mirror bucket name.
func (m *Mirror) Bucket() string { return m.bucket }

// CircuitState reports whether the mirror is currently skipping jobs.
func (m *Mirror) CircuitState() CircuitState {
	if m == nil {
		return StateClosed
	}
	return m.breaker.State()
}

func (m *Mirror) enqueue(job mirrorJob) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		Debug("mirror closed, job dropped", map[string]any{"name": job.name})
		return
	}
	select {
	case m.queue <- job:
	default:
		m.metrics.RecordMirrorError()
		Warn("mirror queue full, job dropped", map[string]any{"name": job.name})
	}
}

func (m *Mirror) run() {
	defer m.wg.Done()
	for job := range m.queue {
		err := m.breaker.Execute(func() error {
			switch job.op {
			case mirrorPut:
				return m.put(job.name, job.path)
			case mirrorRemove:
				return m.remove(job.name)
			}
			return nil
		})
		if errors.Is(err, ErrCircuitOpen) {
			m.metrics.RecordMirrorError()
			Debug("mirror job skipped", map[string]any{"name": job.name, "bucket": m.bucket})
			continue
		}
		if err != nil {
			m.metrics.RecordMirrorError()
			Error("mirror job failed", map[string]any{"name": job.name, "bucket": m.bucket}, err)
		}
	}
}

func (m *Mirror) put(name, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		// Deleted before we got to it; the queued remove settles the bucket.
		return nil
	}
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Two passes over the file: the digest goes into the object's metadata.
	sum, size, err := sha256Reader(f)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	_, err = m.client.PutObject(ctx, m.bucket, name, f, size, minio.PutObjectOptions{
		ContentType:  contentTypeFor(name),
		UserMetadata: map[string]string{"sha256": sum},
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (m *Mirror) remove(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.client.RemoveObject(ctx, m.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
