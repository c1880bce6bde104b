// Package artifact maps shards and survival tensors onto blob storage:
// underground_energies/ holds shards, survival_probabilities/ holds tensors.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"go.uber.org/zap"

	"mute/internal/blob"
	"mute/internal/config"
)

// ErrDirectoryMissing is returned when output would go to a directory that
// does not exist and creating it was not allowed.
var ErrDirectoryMissing = errors.New("output directory does not exist")

const contentType = "text/plain; charset=utf-8"

// Store reads and writes pipeline artifacts.
type Store struct {
	blobs  blob.Store
	logger *zap.Logger
}

// New wraps blobs.
func New(blobs blob.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{blobs: blobs, logger: logger}
}

// DirExists reports whether dir exists. Stores without real directories
// always report true.
func (s *Store) DirExists(ctx context.Context, dir string) (bool, error) {
	p, ok := s.blobs.(blob.Prefixer)
	if !ok {
		return true, nil
	}
	return p.PrefixExists(ctx, dir)
}

// EnsureDir makes sure dir can receive output. A missing directory is created
// when create is set and reported as ErrDirectoryMissing otherwise.
func (s *Store) EnsureDir(ctx context.Context, dir string, create bool) error {
	p, ok := s.blobs.(blob.Prefixer)
	if !ok {
		return nil
	}
	exists, err := p.PrefixExists(ctx, dir)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if !create {
		return fmt.Errorf("%w: %s", ErrDirectoryMissing, dir)
	}
	s.logger.Debug("creating output directory", zap.String("dir", dir))
	return p.EnsurePrefix(ctx, dir)
}

// CreateShard opens the shard of job for writing, replacing any previous one.
func (s *Store) CreateShard(ctx context.Context, key config.Key, job int) (io.WriteCloser, error) {
	return s.create(ctx, key.ShardName(job), map[string]string{"kind": "shard", "job": fmt.Sprint(job)})
}

// OpenShard opens the shard of job for reading.
func (s *Store) OpenShard(ctx context.Context, key config.Key, job int) (io.ReadCloser, error) {
	return s.open(ctx, key.ShardName(job))
}

// ShardExists reports whether the shard of job is present.
func (s *Store) ShardExists(ctx context.Context, key config.Key, job int) (bool, error) {
	return s.exists(ctx, key.ShardName(job))
}

// CreateTensor opens the tensor file of key for writing, replacing any previous one.
func (s *Store) CreateTensor(ctx context.Context, key config.Key) (io.WriteCloser, error) {
	return s.create(ctx, key.TensorName(), map[string]string{"kind": "tensor"})
}

// OpenTensor opens the tensor file of key.
func (s *Store) OpenTensor(ctx context.Context, key config.Key) (io.ReadCloser, error) {
	return s.open(ctx, key.TensorName())
}

// TensorExists reports whether the tensor file of key is present.
func (s *Store) TensorExists(ctx context.Context, key config.Key) (bool, error) {
	return s.exists(ctx, key.TensorName())
}

// OpenTensorFile opens a tensor file by its base name.
func (s *Store) OpenTensorFile(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.open(ctx, path.Join(config.TensorDir, name))
}

// URL returns a link to a stored artifact. Drivers that cannot link to their
// contents return blob.ErrUnsupported.
func (s *Store) URL(ctx context.Context, blobKey string) (string, error) {
	return s.blobs.PresignURL(ctx, blobKey, blob.SignedURLOptions{})
}

func (s *Store) open(ctx context.Context, key string) (io.ReadCloser, error) {
	_, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.blobs.Head(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) create(ctx context.Context, key string, md map[string]string) (io.WriteCloser, error) {
	opts := blob.PutOptions{ContentType: contentType, Metadata: md}
	if st, ok := s.blobs.(blob.Streamer); ok {
		return st.Create(ctx, key, opts)
	}
	return &upload{ctx: ctx, blobs: s.blobs, key: key, opts: opts}, nil
}

// upload buffers content for stores that only accept whole objects.
type upload struct {
	ctx    context.Context
	blobs  blob.Store
	key    string
	opts   blob.PutOptions
	buf    bytes.Buffer
	closed bool
}

func (u *upload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, fmt.Errorf("write %s: closed", u.key)
	}
	return u.buf.Write(p)
}

func (u *upload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	if _, err := u.blobs.Delete(u.ctx, u.key); err != nil {
		return fmt.Errorf("replace %s: %w", u.key, err)
	}
	if _, err := u.blobs.Put(u.ctx, u.key, bytes.NewReader(u.buf.Bytes()), u.opts); err != nil {
		return fmt.Errorf("upload %s: %w", u.key, err)
	}
	return nil
}
