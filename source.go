package dbpf

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ByteSource provides random access to archive bytes.
//
// Implementations exist for local files (re-opened per read so that many
// archives can stay open without holding descriptors) and in-memory buffers
// (*bytes.Reader).
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// fileSource reads a file by path, opening it for every read.
// A negative size is resolved on first use.
type fileSource struct {
	path string
	size int64
}

func newFileSource(path string) (*fileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("dbpf: %s is not a regular file", path)
	}
	return &fileSource{path: path, size: info.Size()}, nil
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.ReadAt(p, off)
}

func (s *fileSource) Size() int64 {
	if s.size >= 0 {
		return s.size
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// readFull reads exactly n bytes at off.
func readFull(src ByteSource, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := src.ReadAt(buf, off)
	if got == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = fmt.Errorf("dbpf: short read at %d (%d of %d bytes): %w", off, got, n, ErrCorruptArchive)
	}
	return nil, err
}
