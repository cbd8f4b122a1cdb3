package filestore_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/grader/internal/filestore"
	"github.com/stretchr/testify/require"
)

func keyOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

type fakeRemote struct {
	objects map[string][]byte
	calls   atomic.Int32
}

func (f *fakeRemote) download(_ context.Context, url string, path string) error {
	f.calls.Add(1)
	body, ok := f.objects[url]
	if !ok {
		return errors.New("404 not found")
	}
	return os.WriteFile(path, body, 0644)
}

func newStore(t *testing.T, remote *fakeRemote) *filestore.FileStore {
	t.Helper()
	dir := t.TempDir()
	fs, err := filestore.New(filepath.Join(dir, "files"), filepath.Join(dir, "tmp"), remote.download, nil)
	require.NoError(t, err)
	return fs
}

func TestFileStore(t *testing.T) {
	plain := "315941512 -119267504\n"
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll([]byte("196674008\n"), nil)
	require.NoError(t, enc.Close())

	remote := &fakeRemote{objects: map[string][]byte{
		"https://files.example/plain":   []byte(plain),
		"https://files.example/big.zst": compressed,
	}}
	fs := newStore(t, remote)
	ctx := context.Background()

	require.NoError(t, fs.Schedule(keyOf(plain), "https://files.example/plain"))
	body, err := fs.Await(ctx, keyOf(plain))
	require.NoError(t, err)
	require.Equal(t, plain, string(body))

	_, err = fs.Await(ctx, keyOf("never scheduled"))
	require.Error(t, err)

	// mismatch in integrity hash
	bad := keyOf("something else")
	require.NoError(t, fs.Schedule(bad, "https://files.example/plain"))
	_, err = fs.Await(ctx, bad)
	require.ErrorContains(t, err, "integrity check failed")

	zkey := keyOf("196674008\n")
	require.NoError(t, fs.Schedule(zkey, "https://files.example/big.zst"))
	require.NoError(t, fs.Schedule(zkey, "https://files.example/big.zst"))
	body, err = fs.Await(ctx, zkey)
	require.NoError(t, err)
	require.Equal(t, "196674008\n", string(body))
}

func TestConcurrentAwaitDownloadsOnce(t *testing.T) {
	content := "shared fixture"
	remote := &fakeRemote{objects: map[string][]byte{"u": []byte(content)}}
	fs := newStore(t, remote)
	require.NoError(t, fs.Schedule(keyOf(content), "u"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, err := fs.Await(context.Background(), keyOf(content))
			if err != nil || string(body) != content {
				t.Errorf("await: %v %q", err, body)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), remote.calls.Load())
}

func TestPrefetchAndInvalidKey(t *testing.T) {
	a, b := "first", "second"
	remote := &fakeRemote{objects: map[string][]byte{"a": []byte(a), "b": []byte(b)}}
	fs := newStore(t, remote)

	require.Error(t, fs.Schedule("not-a-hash", "a"))
	require.NoError(t, fs.Schedule(keyOf(a), "a"))
	require.NoError(t, fs.Schedule(keyOf(b), "b"))
	require.NoError(t, fs.Prefetch(context.Background(), 2))
	require.Equal(t, int32(2), remote.calls.Load())

	body, err := fs.Await(context.Background(), keyOf(b))
	require.NoError(t, err)
	require.Equal(t, b, string(body))
	require.Equal(t, int32(2), remote.calls.Load())
}

func TestDownloadError(t *testing.T) {
	remote := &fakeRemote{objects: map[string][]byte{}}
	fs := newStore(t, remote)
	key := keyOf("gone")
	require.NoError(t, fs.Schedule(key, "missing"))
	_, err := fs.Await(context.Background(), key)
	require.ErrorContains(t, err, "404")
}
