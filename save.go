package dbpf

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Save writes the archive to path.
//
// Uses atomic writes (temp file + rename) so that saving over the file the
// archive was opened from is safe. Parent directories are created as needed.
// Saving an unchanged archive to its own path does nothing; the modified
// timestamp is only updated when something changed.
func (a *Archive) Save(path string) error {
	if !a.Modified() && samePath(path, a.Path()) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	if !a.Modified() {
		if err := writeFileAtomic(path, func(w io.Writer) error {
			_, err := a.copySource(w)
			return err
		}); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		a.mu.Lock()
		a.path = path
		a.mu.Unlock()
		return nil
	}

	l, err := a.plan(unixSeconds(a.cfg.now()))
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := writeFileAtomic(path, func(w io.Writer) error {
		_, err := a.writeLayout(w, l)
		return err
	}); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	src, err := newFileSource(path)
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	a.commit(l, src, path)
	a.cfg.logger.Debug("saved archive", "path", path, "entries", len(l.slots))
	return nil
}

// writeFileAtomic streams into a temp file then renames to target,
// ensuring atomic replacement of the target file.
func writeFileAtomic(target string, write func(io.Writer) error) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".dbpf-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
