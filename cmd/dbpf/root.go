package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/meigma/dbpf"
	"github.com/meigma/dbpf/cache"
	dbpfhttp "github.com/meigma/dbpf/http"
)

type rootOptions struct {
	logLevel string
	cacheMem int64
	logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "dbpf",
		Short: "Inspect SimCity 4 DBPF archives and plugin folders",
		Long: `dbpf reads the DBPF archives used by SimCity 4.

Examples:
  dbpf inspect SimCity_1.dat
  dbpf extract SimCity_1.dat --tgi 0x6534284A-0x07BDDF1C-0x60000474 -o out.bin
  dbpf catalog --installation "C:\Games\SimCity 4" --plugins Plugins --cache catalog.bin`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := log.ParseLevel(opts.logLevel)
			if err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			handler := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
				Prefix:          "dbpf",
				Level:           level,
				ReportTimestamp: true,
			})
			opts.logger = slog.New(handler)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	cmd.PersistentFlags().Int64Var(&opts.cacheMem, "cache-mem", 0, "payload cache budget in bytes (default half of system memory)")

	cmd.AddCommand(newInspectCmd(opts))
	cmd.AddCommand(newExtractCmd(opts))
	cmd.AddCommand(newCatalogCmd(opts))
	return cmd
}

func (o *rootOptions) cache() (*cache.LRU, error) {
	return cache.New(cache.WithMaxBytes(o.cacheMem), cache.WithLogger(o.logger))
}

func (o *rootOptions) archiveOptions() ([]dbpf.Option, error) {
	lru, err := o.cache()
	if err != nil {
		return nil, err
	}
	return []dbpf.Option{dbpf.WithLogger(o.logger), dbpf.WithCache(lru)}, nil
}

// openArchive opens a local path, or an http(s) URL through range requests.
func (o *rootOptions) openArchive(ctx context.Context, target string) (*dbpf.Archive, error) {
	opts, err := o.archiveOptions()
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		src, err := dbpfhttp.NewSource(ctx, target)
		if err != nil {
			return nil, err
		}
		return dbpf.OpenSource(src, opts...)
	}
	return dbpf.OpenContext(ctx, target, opts...)
}
