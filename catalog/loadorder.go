package catalog

import (
	"cmp"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// stagingDir is skipped wherever it appears in a plugin folder.
const stagingDir = "staging-process"

// FileInfo describes a scanned archive file.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

type scanned struct {
	info  FileInfo
	parts []string
}

// CompareLoadOrder orders two paths relative to one root the way the game
// loads them: components compare case-insensitively, a folder's files load
// before its subfolders, and within one folder other extensions load before
// .dat files.
func CompareLoadOrder(a, b string) int {
	return compareParts(splitPath(a), splitPath(b))
}

func compareParts(pa, pb []string) int {
	n := min(len(pa), len(pb)) - 1
	for i := range max(n, 0) {
		if c := strings.Compare(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	if len(pa) != len(pb) {
		return cmp.Compare(len(pa), len(pb))
	}
	if len(pa) == 0 {
		return 0
	}
	last := len(pa) - 1
	if da, db := isDat(pa[last]), isDat(pb[last]); da != db {
		if da {
			return 1
		}
		return -1
	}
	return strings.Compare(pa[last], pb[last])
}

func splitPath(p string) []string {
	return strings.FieldsFunc(strings.ToUpper(p), func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

func isDat(upper string) bool {
	return strings.HasSuffix(upper, ".DAT")
}

// scanRoot lists the archives under root in load order.
func scanRoot(root string, exts []string, skipStaging bool) ([]FileInfo, error) {
	var found []scanned
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipStaging && path != root && strings.EqualFold(d.Name(), stagingDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !hasExtension(d.Name(), exts) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		found = append(found, scanned{
			info:  FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()},
			parts: splitPath(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	slices.SortFunc(found, func(a, b scanned) int {
		return compareParts(a.parts, b.parts)
	})
	out := make([]FileInfo, len(found))
	for i, s := range found {
		out[i] = s.info
	}
	return out, nil
}

func hasExtension(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, want := range exts {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// scanAll lists installation files, then each plugin folder, each in load
// order. A folder that cannot be walked becomes a warning.
func scanAll(cfg *config) ([]FileInfo, []ScanWarning) {
	var files []FileInfo
	var warnings []ScanWarning
	add := func(root string, exts []string, skipStaging bool) {
		list, err := scanRoot(root, exts, skipStaging)
		if err != nil {
			warnings = append(warnings, newWarning(root, err))
			cfg.logger.Warn("scan folder", "path", root, "error", err)
			return
		}
		files = append(files, list...)
	}
	if cfg.installation != "" {
		add(cfg.installation, []string{".dat"}, false)
	}
	for _, dir := range cfg.plugins {
		add(dir, cfg.extensions, true)
	}
	return files, warnings
}
