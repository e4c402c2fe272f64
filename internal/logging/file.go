package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const DefaultMaxFileSize = 100 << 20

// BoundedFile is an append-only log file that starts over from empty once a
// write would take it past MaxSize.
type BoundedFile struct {
	path    string
	maxSize int64

	mu   sync.Mutex
	f    *os.File
	size int64
}

func OpenFile(path string, maxSize int64) (*BoundedFile, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	return &BoundedFile{path: path, maxSize: maxSize, f: f, size: st.Size()}, nil
}

func (b *BoundedFile) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.f == nil {
		return 0, os.ErrClosed
	}
	if b.size+int64(len(p)) > b.maxSize {
		if err := b.f.Truncate(0); err != nil {
			return 0, fmt.Errorf("truncate log file: %w", err)
		}
		b.size = 0
	}
	n, err := b.f.Write(p)
	b.size += int64(n)
	return n, err
}

func (b *BoundedFile) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *BoundedFile) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}
