package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// DownloadFunc fetches url into the file at path.
type DownloadFunc func(ctx context.Context, url string, path string) error

var sha256Key = regexp.MustCompile(`^[0-9a-f]{64}$`)

// zstd frame magic, little endian 0xFD2FB528
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// FileStore is a content-addressed cache of fixture files keyed by their
// sha256. Concurrent requests for one key share a single download.
type FileStore struct {
	fileDirectory string
	tmpDirectory  string
	downloadFunc  DownloadFunc
	entries       *xsync.MapOf[string, *entry]
	logger        *slog.Logger
}

type entry struct {
	url  string
	once sync.Once
	err  error
}

// New creates the store under fileDir, using tmpDir for partial downloads.
func New(fileDir, tmpDir string, download DownloadFunc, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(fileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create file store directory: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tmp directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		fileDirectory: fileDir,
		tmpDirectory:  tmpDir,
		downloadFunc:  download,
		entries:       xsync.NewMapOf[string, *entry](),
		logger:        logger.With("component", "filestore"),
	}, nil
}

// Schedule registers where key can be downloaded from. Scheduling a key
// twice keeps the first url.
func (fs *FileStore) Schedule(key string, url string) error {
	if !sha256Key.MatchString(key) {
		return fmt.Errorf("invalid sha256 key %q", key)
	}
	fs.entries.LoadOrStore(key, &entry{url: url})
	return nil
}

// Prefetch downloads every scheduled key, at most parallel at a time.
func (fs *FileStore) Prefetch(ctx context.Context, parallel int) error {
	eg, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		eg.SetLimit(parallel)
	}
	fs.entries.Range(func(key string, e *entry) bool {
		eg.Go(func() error {
			return fs.fetch(ctx, key, e)
		})
		return true
	})
	return eg.Wait()
}

// Await downloads key if needed and returns its contents.
func (fs *FileStore) Await(ctx context.Context, key string) ([]byte, error) {
	e, ok := fs.entries.Load(key)
	if !ok {
		return nil, fmt.Errorf("file %s has not been scheduled for download", key)
	}
	if err := fs.fetch(ctx, key, e); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(fs.fileDirectory, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", key, err)
	}
	return data, nil
}

func (fs *FileStore) fetch(ctx context.Context, key string, e *entry) error {
	e.once.Do(func() {
		e.err = fs.downloadIfDoesNotExist(ctx, key, e.url)
	})
	return e.err
}

func (fs *FileStore) downloadIfDoesNotExist(ctx context.Context, key string, url string) error {
	filePath := filepath.Join(fs.fileDirectory, key)
	if _, err := os.Stat(filePath); err == nil {
		fs.logger.Debug("file found in cache", "key", key)
		return nil
	}

	tmp, err := os.CreateTemp(fs.tmpDirectory, key+".*")
	if err != nil {
		return fmt.Errorf("failed to create tmp file for %s: %w", key, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	fs.logger.Info("downloading file", "key", key, "url", url)
	if err := fs.downloadFunc(ctx, url, tmpPath); err != nil {
		return fmt.Errorf("failed to download file %s: %w", key, err)
	}

	content, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to read downloaded file %s: %w", key, err)
	}
	content, err = decompress(content)
	if err != nil {
		return fmt.Errorf("failed to decompress file %s: %w", key, err)
	}

	sum := sha256.Sum256(content)
	if got := hex.EncodeToString(sum[:]); got != key {
		return fmt.Errorf("integrity check failed for %s: content hashes to %s", key, got)
	}

	if err := os.WriteFile(tmpPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to move file %s to file store: %w", key, err)
	}
	return nil
}

func decompress(content []byte) ([]byte, error) {
	if !bytes.HasPrefix(content, zstdMagic) {
		return content, nil
	}
	d, err := zstd.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return io.ReadAll(d)
}
