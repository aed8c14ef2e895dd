// Package catalog builds a load-order-aware index over a SimCity 4
// installation and plugin folders.
//
// Files load in the order the game uses; later files override earlier ones
// for the same Type-Group-Instance key. Files that fail to parse are reported
// as warnings and never abort the build.
//
// # Quick Start
//
//	c, err := catalog.Build(ctx,
//	    catalog.WithInstallation(`C:\Games\SimCity 4`),
//	    catalog.WithPlugins(`C:\Users\me\Documents\SimCity 4\Plugins`),
//	)
//	if err != nil {
//	    return err
//	}
//	for _, w := range c.Warnings() {
//	    log.Printf("skipped %s: %v", w.Path, w.Err)
//	}
//	e, ok := c.Find(dbpf.TypeExemplar, 0x07BDDF1C, 0x60000474)
//
// Building a catalog over thousands of files takes a while; LoadOrBuild keeps
// a cache file that is reused while no scanned file has changed.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/dbpf"
	"github.com/meigma/dbpf/exemplar"
	"github.com/meigma/dbpf/internal/index"
	"github.com/meigma/dbpf/internal/pool"
)

// Catalog is the merged view over every scanned archive.
// It is safe for concurrent use once built.
type Catalog struct {
	files    []FileInfo
	archives []*dbpf.Archive // parallel to files, nil where parsing failed
	entries  *index.Collection[*dbpf.Entry]
	families map[uint32][]*dbpf.Entry
	warnings []ScanWarning
	cfg      config

	fingerprint digest.Digest
}

// ScanWarning records a file or folder that could not be read.
type ScanWarning struct {
	Path string
	Err  error
}

func (w ScanWarning) Error() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

func (w ScanWarning) Unwrap() error {
	return w.Err
}

func newWarning(path string, err error) ScanWarning {
	return ScanWarning{Path: path, Err: fmt.Errorf("%w: %w", dbpf.ErrPartialScan, err)}
}

// Build scans the configured folders, parses every archive and merges them.
//
// Cancelling ctx stops new files from being parsed; files already being
// parsed finish, and Build returns ctx.Err().
func Build(ctx context.Context, opts ...Option) (*Catalog, error) {
	cfg := newConfig(opts)
	cfg.report(dbpf.ProgressEvent{Stage: dbpf.StageScanning})
	files, warnings := scanAll(&cfg)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return build(ctx, cfg, files, warnings)
}

func build(ctx context.Context, cfg config, files []FileInfo, warnings []ScanWarning) (*Catalog, error) {
	c := &Catalog{files: files, warnings: warnings, cfg: cfg, fingerprint: fingerprint(files, cfg.families)}
	cfg.logger.Debug("scanned catalog files", "files", len(files))

	archives, err := c.parse(ctx)
	if err != nil {
		return nil, err
	}
	c.archives = archives

	cfg.report(dbpf.ProgressEvent{Stage: dbpf.StageMerging, FilesDone: len(files), FilesTotal: len(files)})
	c.merge()

	if cfg.families {
		cfg.report(dbpf.ProgressEvent{Stage: dbpf.StageFamilyIndexing, FilesDone: len(files), FilesTotal: len(files)})
		if err := c.indexFamilies(ctx); err != nil {
			return nil, err
		}
	}
	cfg.report(dbpf.ProgressEvent{Stage: dbpf.StageReady, FilesDone: len(files), FilesTotal: len(files)})
	cfg.logger.Info("catalog ready", "files", len(files), "entries", c.Len(), "warnings", len(c.warnings))
	return c, nil
}

// parse opens every file on the worker pool. Results are collected in load
// order whatever order the workers finish in.
func (c *Catalog) parse(ctx context.Context) ([]*dbpf.Archive, error) {
	p := pool.New(ctx, pool.WithWorkers(c.cfg.workers), pool.WithLogger(c.cfg.logger))
	futures := make([]*pool.Future[*dbpf.Archive], 0, len(c.files))
	var submitErr error
	for _, f := range c.files {
		fut, err := pool.Submit(ctx, p, func(ctx context.Context) (*dbpf.Archive, error) {
			return dbpf.OpenContext(ctx, f.Path, c.cfg.archiveOpts...)
		})
		if err != nil {
			submitErr = err
			break
		}
		futures = append(futures, fut)
	}
	defer p.Close()
	if submitErr != nil {
		return nil, submitErr
	}

	total := len(c.files)
	archives := make([]*dbpf.Archive, total)
	for i, fut := range futures {
		a, err := fut.Wait(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		path := c.files[i].Path
		if err != nil {
			c.warnings = append(c.warnings, newWarning(path, err))
			c.cfg.logger.Warn("skip archive", "path", path, "error", err)
		} else {
			archives[i] = a
		}
		c.cfg.report(dbpf.ProgressEvent{Stage: dbpf.StageParsing, Path: path, FilesDone: i + 1, FilesTotal: total})
	}
	if n := p.Replaced(); n > 0 {
		c.cfg.logger.Warn("parsing recovered from panics", "count", n)
	}
	return archives, nil
}

// merge flattens the archives in load order. Within one file the first copy
// of a key wins; across files the later file wins.
func (c *Catalog) merge() {
	var flat []*dbpf.Entry
	for _, a := range c.archives {
		if a == nil {
			continue
		}
		entries := a.Entries()
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].TGI() != dbpf.DirTGI {
				flat = append(flat, entries[i])
			}
		}
	}

	last := make(map[dbpf.TGI]int, len(flat))
	for i, e := range flat {
		last[e.TGI()] = i
	}
	c.entries = index.NewCollection[*dbpf.Entry](len(last))
	for i, e := range flat {
		if last[e.TGI()] == i {
			c.entries.Push(e.TGI(), e)
		}
	}
}

func (cfg *config) report(ev dbpf.ProgressEvent) {
	if cfg.progress != nil {
		cfg.progress(ev)
	}
}

// Find returns the winning entry for the key.
func (c *Catalog) Find(t, g, i uint32) (*dbpf.Entry, bool) {
	return c.entries.Find(dbpf.TGI{Type: t, Group: g, Instance: i}.Query())
}

// FindAll returns every winning entry matching q in catalog order.
func (c *Catalog) FindAll(q dbpf.Query) []*dbpf.Entry {
	return c.entries.FindAll(q)
}

// Entries returns the winning entries in catalog order.
func (c *Catalog) Entries() []*dbpf.Entry {
	return c.entries.All()
}

// Len returns the number of distinct keys.
func (c *Catalog) Len() int {
	return c.entries.Len()
}

// Files returns the scanned files in load order, including ones that failed.
func (c *Catalog) Files() []FileInfo {
	return slices.Clone(c.files)
}

// Archives returns the parsed archives in load order.
func (c *Catalog) Archives() []*dbpf.Archive {
	out := make([]*dbpf.Archive, 0, len(c.archives))
	for _, a := range c.archives {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

// Warnings returns the files and folders skipped during the build.
func (c *Catalog) Warnings() []ScanWarning {
	return slices.Clone(c.warnings)
}

// PartialScanError joins the catalog's warnings into one error, or returns
// nil when everything was read.
func PartialScanError(c *Catalog) error {
	errs := make([]error, len(c.warnings))
	for i, w := range c.warnings {
		errs[i] = w
	}
	return errors.Join(errs...)
}

// Touch marks e as recently used in the shared cache without reading it.
func (c *Catalog) Touch(e *dbpf.Entry) {
	if c.cfg.cache != nil {
		c.cfg.cache.Touch(e)
	}
}

// Free drops every cached payload of every archive.
func (c *Catalog) Free() {
	for _, a := range c.archives {
		if a != nil {
			a.Free()
		}
	}
}

// Exemplar reads the exemplar or cohort stored under tgi.
// It returns nil without an error when the key is not in the catalog.
func (c *Catalog) Exemplar(tgi dbpf.TGI) (*exemplar.Exemplar, error) {
	e, ok := c.entries.Find(tgi.Query())
	if !ok {
		return nil, nil
	}
	data, err := e.Decompress()
	if err != nil {
		return nil, err
	}
	return exemplar.Parse(data)
}

// Property resolves property id on the exemplar stored in e, following its
// parent cohorts through the catalog.
func (c *Catalog) Property(e *dbpf.Entry, id uint32) (*exemplar.Property, bool, error) {
	data, err := e.Decompress()
	if err != nil {
		return nil, false, err
	}
	ex, err := exemplar.Parse(data)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", e.TGI(), err)
	}
	return exemplar.Resolver{Lookup: c.Exemplar}.Property(ex, id)
}
