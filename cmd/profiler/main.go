package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"

	"github.com/meigma/dbpf"
	"github.com/meigma/dbpf/cache"
	"github.com/meigma/dbpf/catalog"
	"github.com/meigma/dbpf/internal/qfs"
	"github.com/meigma/dbpf/internal/testutil"
)

type config struct {
	mode       string
	files      int
	entries    int
	entrySize  int
	compressed bool
	pattern    string
	fgProfile  string
	duration   time.Duration
	iterations int
	pprofAddr  string
	cpuProfile string
	memProfile string
	traceFile  string
	cacheBytes int64
	workers    int
	tempDir    string
	keepTemp   bool
	randomSeed int64
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes   []byte
	sinkEntry   *dbpf.Entry
	sinkArchive *dbpf.Archive
	sinkCount   int
)

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	ds, err := makeDataset(dir, cfg)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}

	var stopFG func() error
	if cfg.fgProfile != "" {
		fgFile, fgErr := os.Create(cfg.fgProfile)
		if fgErr != nil {
			log.Fatal(fgErr)
		}
		stopFG = fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				log.Printf("fgprof stop error: %v", err)
			}
			_ = fgFile.Close()
		}()
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg, ds)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	fmt.Printf("mode=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode,
		stats.ops,
		stats.bytes,
		stats.elapsed,
		float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
	)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

// dataset is a generated plugins folder.
type dataset struct {
	root    string
	paths   []string
	keys    []dbpf.TGI
	payload []byte
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(cfg config, ds *dataset) (profileStats, error) {
	start := time.Now()
	ops := 0
	var byteCount int64

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}

	lru, err := cache.New(cache.WithMaxBytes(cfg.cacheBytes))
	if err != nil {
		return profileStats{}, err
	}
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks

	switch cfg.mode {
	case "qfs-compress":
		for shouldContinue() {
			out, err := qfs.Compress(ds.payload)
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = out
			byteCount += int64(len(ds.payload))
			ops++
		}

	case "qfs-decompress":
		packed, err := qfs.Compress(ds.payload)
		if err != nil {
			return profileStats{}, err
		}
		for shouldContinue() {
			out, err := qfs.Decompress(packed)
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = out
			byteCount += int64(len(out))
			ops++
		}

	case "parse":
		for shouldContinue() {
			a, err := dbpf.Open(ds.paths[ops%len(ds.paths)])
			if err != nil {
				return profileStats{}, err
			}
			sinkArchive = a
			sinkCount = a.Len()
			ops++
		}

	case "read":
		archives := make([]*dbpf.Archive, len(ds.paths))
		for i, p := range ds.paths {
			a, err := dbpf.Open(p, dbpf.WithCache(lru))
			if err != nil {
				return profileStats{}, err
			}
			archives[i] = a
		}
		for shouldContinue() {
			a := archives[rng.Intn(len(archives))]
			key := ds.keys[rng.Intn(len(ds.keys))]
			e, ok := a.FindTGI(key.Type, key.Group, key.Instance)
			if !ok {
				return profileStats{}, fmt.Errorf("missing entry %s", key)
			}
			data, err := e.Decompress()
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = data
			byteCount += int64(len(data))
			ops++
		}

	case "catalog":
		for shouldContinue() {
			c, err := catalog.Build(context.Background(),
				catalog.WithPlugins(ds.root),
				catalog.WithWorkers(cfg.workers),
				catalog.WithCache(lru))
			if err != nil {
				return profileStats{}, err
			}
			sinkCount = c.Len()
			ops++
		}

	case "catalog-cached":
		cachePath := filepath.Join(ds.root, "..", "catalog.bin")
		for shouldContinue() {
			c, err := catalog.LoadOrBuild(context.Background(), cachePath,
				catalog.WithPlugins(ds.root),
				catalog.WithWorkers(cfg.workers),
				catalog.WithCache(lru))
			if err != nil {
				return profileStats{}, err
			}
			sinkCount = c.Len()
			ops++
		}

	case "catalog-find":
		c, err := catalog.Build(context.Background(), catalog.WithPlugins(ds.root), catalog.WithWorkers(cfg.workers))
		if err != nil {
			return profileStats{}, err
		}
		start = time.Now()
		for shouldContinue() {
			key := ds.keys[rng.Intn(len(ds.keys))]
			e, ok := c.Find(key.Type, key.Group, key.Instance)
			if !ok {
				return profileStats{}, fmt.Errorf("missing entry %s", key)
			}
			sinkEntry = e
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		ops:     ops,
		bytes:   byteCount,
		elapsed: time.Since(start),
	}, nil
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.mode, "mode", "catalog", "mode: qfs-compress, qfs-decompress, parse, read, catalog, catalog-cached, catalog-find")
	flag.IntVar(&cfg.files, "files", 64, "number of archives")
	flag.IntVar(&cfg.entries, "entries", 256, "entries per archive")
	flag.IntVar(&cfg.entrySize, "entry-size", 4<<10, "entry size in bytes")
	flag.BoolVar(&cfg.compressed, "compressed", true, "QFS-compress entries")
	flag.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible or random")
	flag.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.Int64Var(&cfg.cacheBytes, "cache-bytes", 64<<20, "payload cache budget")
	flag.IntVar(&cfg.workers, "workers", 0, "catalog parse workers (0 = NumCPU)")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for dataset")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	flag.Parse()
	return cfg
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "dbpf-profiler-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

// makeDataset writes cfg.files archives sharing the same keys, so later files
// override earlier ones in a catalog.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func makeDataset(dir string, cfg config) (*dataset, error) {
	ds := &dataset{root: filepath.Join(dir, "Plugins")}
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional use for reproducible benchmarks

	ds.payload = make([]byte, cfg.entrySize)
	switch cfg.pattern {
	case "random":
		if _, err := rng.Read(ds.payload); err != nil {
			return nil, err
		}
	default:
		ds.payload = testutil.Pattern(cfg.entrySize, 'a')
	}

	for i := range cfg.entries {
		ds.keys = append(ds.keys, dbpf.TGI{Type: dbpf.TypeExemplar, Group: uint32(i % 7), Instance: uint32(i)}) //nolint:gosec // bounded by flag
	}

	for i := range cfg.files {
		a := dbpf.New()
		for _, key := range ds.keys {
			a.Add(key, ds.payload, cfg.compressed)
		}
		path := filepath.Join(ds.root, fmt.Sprintf("dir%02d", i%8), fmt.Sprintf("file%05d.dat", i))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // 0o755 is intentional for profiler
			return nil, err
		}
		if err := a.Save(path); err != nil {
			return nil, err
		}
		ds.paths = append(ds.paths, path)
	}
	return ds, nil
}
