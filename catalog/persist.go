package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/dbpf"
	"github.com/meigma/dbpf/internal/fb"
	"github.com/meigma/dbpf/internal/index"
	"github.com/meigma/dbpf/internal/sizing"
)

// CacheVersion is the catalog cache format version.
const CacheVersion = 1

const flagCompressed = 1

var errCacheTooLarge = fmt.Errorf("catalog: too many entries to cache: %w", dbpf.ErrSizeOverflow)

// Fingerprint identifies a scan result by every file's path, size and
// modification time.
func Fingerprint(files []FileInfo) digest.Digest {
	return fingerprint(files, true)
}

func fingerprint(files []FileInfo, families bool) digest.Digest {
	d := digest.Canonical.Digester()
	h := d.Hash()
	fmt.Fprintf(h, "v%d families=%t\n", CacheVersion, families)
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", f.Path, f.Size, f.ModTime.UnixNano())
	}
	return d.Digest()
}

// Fingerprint returns the fingerprint of the files the catalog was built from.
func (c *Catalog) Fingerprint() digest.Digest {
	return c.fingerprint
}

func timeFromNanos(ns int64) time.Time {
	return time.Unix(0, ns)
}

// WriteCache writes the catalog as a zstd-compressed FlatBuffers table.
// Payloads are not included; a restored catalog reads them from the
// original files.
func (c *Catalog) WriteCache(w io.Writer) error {
	buf, err := c.marshal()
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return err
	}
	if _, err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("write catalog cache: %w", err)
	}
	return enc.Close()
}

func (c *Catalog) marshal() ([]byte, error) {
	type row struct {
		e    *dbpf.Entry
		file uint32
	}
	var rows []row
	rowOf := make(map[*dbpf.Entry]uint32)
	spans := make([][2]uint32, len(c.files))
	for i, a := range c.archives {
		file, err := sizing.ToUint32(i, errCacheTooLarge)
		if err != nil {
			return nil, err
		}
		start, err := sizing.ToUint32(len(rows), errCacheTooLarge)
		if err != nil {
			return nil, err
		}
		spans[i][0] = start
		if a == nil {
			continue
		}
		for _, e := range a.Entries() {
			pos, err := sizing.ToUint32(len(rows), errCacheTooLarge)
			if err != nil {
				return nil, err
			}
			rowOf[e] = pos
			rows = append(rows, row{e: e, file: file})
		}
		count, err := sizing.ToUint32(len(rows)-int(start), errCacheTooLarge)
		if err != nil {
			return nil, err
		}
		spans[i][1] = count
	}

	winners := c.entries.All()
	winnerOf := make(map[*dbpf.Entry]uint32, len(winners))
	for i, e := range winners {
		pos, err := sizing.ToUint32(i, errCacheTooLarge)
		if err != nil {
			return nil, err
		}
		winnerOf[e] = pos
	}
	indexData, err := c.entries.Index().MarshalBinary()
	if err != nil {
		return nil, err
	}

	errText := make(map[string]string)
	for _, w := range c.warnings {
		errText[w.Path] = strings.TrimPrefix(w.Err.Error(), dbpf.ErrPartialScan.Error()+": ")
	}

	builder := flatbuffers.NewBuilder(1024 + 64*len(rows))

	ids := c.Families()
	familyOffsets := make([]flatbuffers.UOffsetT, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		members := c.families[ids[i]]
		fb.FamilyStartMembersVector(builder, len(members))
		for j := len(members) - 1; j >= 0; j-- {
			builder.PrependUint32(winnerOf[members[j]])
		}
		membersOffset := builder.EndVector(len(members))
		fb.FamilyStart(builder)
		fb.FamilyAddId(builder, ids[i])
		fb.FamilyAddMembers(builder, membersOffset)
		familyOffsets[i] = fb.FamilyEnd(builder)
	}
	fb.CatalogStartFamiliesVector(builder, len(familyOffsets))
	for i := len(familyOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(familyOffsets[i])
	}
	familiesVec := builder.EndVector(len(familyOffsets))

	fileOffsets := make([]flatbuffers.UOffsetT, len(c.files))
	for i := len(c.files) - 1; i >= 0; i-- {
		f := c.files[i]
		pathOffset := builder.CreateString(f.Path)
		var errOffset flatbuffers.UOffsetT
		if c.archives[i] == nil {
			errOffset = builder.CreateString(errText[f.Path])
		}
		fb.FileStart(builder)
		fb.FileAddPath(builder, pathOffset)
		fb.FileAddSize(builder, f.Size)
		fb.FileAddMtimeNs(builder, f.ModTime.UnixNano())
		fb.FileAddRowsStart(builder, spans[i][0])
		fb.FileAddRowsCount(builder, spans[i][1])
		if errOffset != 0 {
			fb.FileAddError(builder, errOffset)
		}
		fileOffsets[i] = fb.FileEnd(builder)
	}
	fb.CatalogStartFilesVector(builder, len(fileOffsets))
	for i := len(fileOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(fileOffsets[i])
	}
	filesVec := builder.EndVector(len(fileOffsets))

	fb.CatalogStartRowsVector(builder, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		e := rows[i].e
		t := e.TGI()
		var flags uint32
		if e.Compressed() {
			flags |= flagCompressed
		}
		fb.CreateEntryRow(builder, t.Type, t.Group, t.Instance, e.Resource(),
			e.Offset(), e.Size(), e.FileSize(), rows[i].file, flags)
	}
	rowsVec := builder.EndVector(len(rows))

	fb.CatalogStartWinnersVector(builder, len(winners))
	for i := len(winners) - 1; i >= 0; i-- {
		builder.PrependUint32(rowOf[winners[i]])
	}
	winnersVec := builder.EndVector(len(winners))

	indexVec := builder.CreateByteVector(indexData)
	fpOffset := builder.CreateString(c.Fingerprint().String())

	fb.CatalogStart(builder)
	fb.CatalogAddVersion(builder, CacheVersion)
	fb.CatalogAddFingerprint(builder, fpOffset)
	fb.CatalogAddFiles(builder, filesVec)
	fb.CatalogAddRows(builder, rowsVec)
	fb.CatalogAddWinners(builder, winnersVec)
	fb.CatalogAddIndex(builder, indexVec)
	fb.CatalogAddFamilies(builder, familiesVec)
	builder.Finish(fb.CatalogEnd(builder))
	return builder.FinishedBytes(), nil
}

// ReadCache restores a catalog written by WriteCache. Archives are restored
// from their recorded index rows without reading the files.
func ReadCache(r io.Reader, opts ...Option) (*Catalog, error) {
	cfg := newConfig(opts)
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := sizing.ReadAllWithLimit(dec, cfg.maxCacheSize,
		fmt.Errorf("catalog: cache exceeds %d bytes: %w", cfg.maxCacheSize, dbpf.ErrSizeOverflow))
	if err != nil {
		return nil, err
	}
	return unmarshal(data, cfg)
}

func unmarshal(data []byte, cfg config) (c *Catalog, err error) {
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = fmt.Errorf("catalog: failed to parse cache: %v: %w", r, dbpf.ErrCorruptArchive)
		}
	}()
	if len(data) < 8 {
		return nil, fmt.Errorf("catalog: cache of %d bytes: %w", len(data), dbpf.ErrCorruptArchive)
	}
	root := fb.GetRootAsCatalog(data, 0)
	if v := root.Version(); v != CacheVersion {
		return nil, fmt.Errorf("catalog: cache version %d: %w", v, dbpf.ErrUnsupported)
	}

	c = &Catalog{cfg: cfg}
	nrows := root.RowsLength()
	byRow := make([]*dbpf.Entry, nrows)
	var file fb.File
	var fr fb.EntryRow
	for i := range root.FilesLength() {
		root.Files(&file, i)
		info := FileInfo{
			Path:    string(file.Path()),
			Size:    file.Size(),
			ModTime: timeFromNanos(file.MtimeNs()),
		}
		c.files = append(c.files, info)
		if msg := file.Error(); msg != nil {
			c.archives = append(c.archives, nil)
			c.warnings = append(c.warnings, newWarning(info.Path, errors.New(string(msg))))
			continue
		}
		start, count := int(file.RowsStart()), int(file.RowsCount())
		if start+count > nrows {
			return nil, fmt.Errorf("catalog: file %s rows out of range: %w", info.Path, dbpf.ErrCorruptArchive)
		}
		infos := make([]dbpf.EntryInfo, count)
		for j := range count {
			root.Rows(&fr, start+j)
			infos[j] = dbpf.EntryInfo{
				TGI:        dbpf.TGI{Type: fr.Type(), Group: fr.Group(), Instance: fr.Instance()},
				Resource:   fr.Resource(),
				Offset:     fr.Offset(),
				Size:       fr.Size(),
				FileSize:   fr.FileSize(),
				Compressed: fr.Flags()&flagCompressed != 0,
			}
		}
		a := dbpf.Restore(info.Path, infos, cfg.archiveOpts...)
		copy(byRow[start:], a.Entries())
		c.archives = append(c.archives, a)
	}

	n := root.WinnersLength()
	c.entries = index.NewCollection[*dbpf.Entry](n)
	winners := make([]*dbpf.Entry, n)
	for i := range n {
		pos := int(root.Winners(i))
		if pos >= nrows || byRow[pos] == nil {
			return nil, fmt.Errorf("catalog: winner %d out of range: %w", i, dbpf.ErrCorruptArchive)
		}
		winners[i] = byRow[pos]
		c.entries.Push(winners[i].TGI(), winners[i])
	}
	if idx, err := index.Load(root.IndexBytes()); err != nil || !c.entries.SetIndex(idx) {
		cfg.logger.Debug("catalog cache index rebuilt", "error", err)
	}

	c.families = make(map[uint32][]*dbpf.Entry, root.FamiliesLength())
	var fam fb.Family
	for i := range root.FamiliesLength() {
		root.Families(&fam, i)
		members := make([]*dbpf.Entry, fam.MembersLength())
		for j := range members {
			pos := int(fam.Members(j))
			if pos >= n {
				return nil, fmt.Errorf("catalog: family 0x%08X member out of range: %w", fam.Id(), dbpf.ErrCorruptArchive)
			}
			members[j] = winners[pos]
		}
		c.families[fam.Id()] = members
	}

	fp, err := digest.Parse(string(root.Fingerprint()))
	if err != nil {
		return nil, fmt.Errorf("catalog: cache fingerprint: %w: %w", err, dbpf.ErrCorruptArchive)
	}
	c.fingerprint = fp
	return c, nil
}

// LoadOrBuild scans the configured folders and reuses the catalog cached at
// cachePath when its fingerprint matches. Otherwise it builds a new catalog
// and rewrites the cache. Failing to write the cache is logged, not returned.
func LoadOrBuild(ctx context.Context, cachePath string, opts ...Option) (*Catalog, error) {
	cfg := newConfig(opts)
	cfg.report(dbpf.ProgressEvent{Stage: dbpf.StageScanning})
	files, warnings := scanAll(&cfg)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want := fingerprint(files, cfg.families)
	cached, err := readCacheFile(cachePath, cfg)
	switch {
	case err == nil && cached.Fingerprint() == want:
		cached.warnings = append(warnings, cached.warnings...)
		cfg.logger.Debug("catalog cache hit", "path", cachePath, "fingerprint", want)
		cfg.report(dbpf.ProgressEvent{Stage: dbpf.StageReady, FilesDone: len(files), FilesTotal: len(files)})
		return cached, nil
	case err == nil:
		cfg.logger.Info("catalog cache is stale", "path", cachePath)
	case !errors.Is(err, fs.ErrNotExist):
		cfg.logger.Warn("read catalog cache", "path", cachePath, "error", err)
	}

	c, err := build(ctx, cfg, files, warnings)
	if err != nil {
		return nil, err
	}
	if err := writeCacheFile(cachePath, c); err != nil {
		cfg.logger.Warn("write catalog cache", "path", cachePath, "error", err)
	}
	return c, nil
}

func readCacheFile(path string, cfg config) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCache(f, withConfig(cfg))
}

// withConfig reuses an already resolved configuration.
func withConfig(cfg config) Option {
	return func(c *config) {
		*c = cfg
		c.archiveOpts = slices.Clip(cfg.archiveOpts)
	}
}

// writeCacheFile writes the cache to a temp file then renames to path,
// ensuring atomic replacement of the cache.
func writeCacheFile(path string, c *Catalog) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".catalog-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := c.WriteCache(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
