package collect

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"
)

// Payload is a binary payload handle with the metadata a transfer
// needs. Implementations must be reopenable, since a replaced upload
// may be retried from the start.
type Payload interface {
	Name() string
	Size() int64
	ModTime() time.Time
	Open() (io.ReadCloser, error)
}

// filePayload reads from the local filesystem.
type filePayload struct {
	path string
	name string
	size int64
	mod  time.Time
}

// NewFilePayload stats path and returns a payload for it. Only regular
// files are accepted.
func NewFilePayload(path string) (Payload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	return &filePayload{
		path: path,
		name: info.Name(),
		size: info.Size(),
		mod:  info.ModTime(),
	}, nil
}

func (f *filePayload) Name() string       { return f.name }
func (f *filePayload) Size() int64        { return f.size }
func (f *filePayload) ModTime() time.Time { return f.mod }

func (f *filePayload) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// memPayload holds its bytes in memory. Used for buffered form parts
// and in tests.
type memPayload struct {
	name string
	data []byte
	mod  time.Time
}

// NewMemPayload wraps an in-memory byte slice as a payload.
func NewMemPayload(name string, data []byte, mod time.Time) Payload {
	return &memPayload{name: name, data: data, mod: mod}
}

func (m *memPayload) Name() string       { return m.name }
func (m *memPayload) Size() int64        { return int64(len(m.data)) }
func (m *memPayload) ModTime() time.Time { return m.mod }

func (m *memPayload) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}
