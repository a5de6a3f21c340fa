// Package upload sends user media to object storage with progress and
// cancellation.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrCanceled is returned by Upload after Cancel. It never reaches OnError.
var ErrCanceled = errors.New("upload canceled")

// ObjectPutter is the part of *minio.Client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Status int

const (
	Idle Status = iota
	Uploading
	Done
	Failed
)

func (s Status) String() string {
	switch s {
	case Uploading:
		return "uploading"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "idle"
}

// State is a snapshot for the UI. Progress is in [0,1].
type State struct {
	Status   Status
	Progress float64
	Key      string
	Err      error
}

type Request struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewMinioClient builds the storage client and makes sure the bucket exists.
func NewMinioClient(ctx context.Context, o Options) (*minio.Client, error) {
	cl, err := minio.New(strings.TrimPrefix(o.Endpoint, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	exists, err := cl.BucketExists(ctx, o.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", o.Bucket, err)
	}
	if !exists {
		if err := cl.MakeBucket(ctx, o.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", o.Bucket, err)
		}
	}
	return cl, nil
}

// Uploader runs one upload at a time. Starting a new one cancels the
// previous.
type Uploader struct {
	client ObjectPutter
	bucket string
	logger *slog.Logger

	OnProgress func(float64)
	OnError    func(error)
	OnDone     func(key string)

	mu     sync.Mutex
	gen    int
	cancel context.CancelFunc
	state  State
}

func New(client ObjectPutter, bucket string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{client: client, bucket: bucket, logger: logger}
}

func (u *Uploader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Upload blocks until the object is stored, fails or is canceled.
func (u *Uploader) Upload(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	key := objectKey(req.Name)

	u.mu.Lock()
	if u.cancel != nil {
		u.cancel()
	}
	u.gen++
	gen := u.gen
	u.cancel = cancel
	u.state = State{Status: Uploading, Key: key}
	u.mu.Unlock()

	progress := &progressReader{total: req.Size, report: func(p float64) { u.progressed(gen, p) }}
	_, err := u.client.PutObject(ctx, u.bucket, key, req.Body, req.Size, minio.PutObjectOptions{
		ContentType: req.ContentType,
		Progress:    progress,
	})

	u.mu.Lock()
	if gen != u.gen {
		// canceled or superseded; state already belongs to someone else
		u.mu.Unlock()
		u.logger.Info("upload canceled", "key", key)
		return "", ErrCanceled
	}
	u.cancel = nil
	if err != nil {
		u.state = State{Status: Failed, Key: key, Progress: u.state.Progress, Err: err}
		onErr := u.OnError
		u.mu.Unlock()
		u.logger.Error("upload failed", "key", key, "err", err)
		if onErr != nil {
			onErr(err)
		}
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	u.state = State{Status: Done, Key: key, Progress: 1}
	onDone := u.OnDone
	u.mu.Unlock()

	u.logger.Info("upload done", "key", key, "bytes", req.Size)
	if onDone != nil {
		onDone(key)
	}
	return key, nil
}

// Cancel aborts the running upload and resets the state right away.
func (u *Uploader) Cancel() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		u.cancel()
		u.cancel = nil
	}
	u.gen++
	u.state = State{}
}

func (u *Uploader) progressed(gen int, p float64) {
	u.mu.Lock()
	if gen != u.gen {
		u.mu.Unlock()
		return
	}
	u.state.Progress = p
	fn := u.OnProgress
	u.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func objectKey(name string) string {
	return "media/" + uuid.NewString() + strings.ToLower(path.Ext(name))
}

// progressReader receives the byte counts minio reports while uploading.
// Multipart uploads call Read from several part workers at once.
type progressReader struct {
	total  int64
	sent   atomic.Int64
	report func(float64)
}

func (pr *progressReader) Read(b []byte) (int, error) {
	sent := pr.sent.Add(int64(len(b)))
	if pr.total > 0 {
		p := float64(sent) / float64(pr.total)
		if p > 1 {
			p = 1
		}
		pr.report(p)
	}
	return len(b), nil
}
