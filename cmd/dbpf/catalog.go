package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meigma/dbpf"
	"github.com/meigma/dbpf/catalog"
)

type catalogOptions struct {
	installation string
	plugins      []string
	cachePath    string
	workers      int
	family       string
	find         string
	noFamilies   bool
}

func newCatalogCmd(root *rootOptions) *cobra.Command {
	opts := &catalogOptions{}
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Build the load-order catalog of an installation and plugin folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatalog(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.installation, "installation", "", "game installation folder")
	cmd.Flags().StringSliceVar(&opts.plugins, "plugins", nil, "plugin folders, in load order")
	cmd.Flags().StringVar(&opts.cachePath, "cache", "", "catalog cache file, reused while no file changes")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "parse workers (default GOMAXPROCS)")
	cmd.Flags().StringVar(&opts.family, "family", "", "list the exemplars of this family id")
	cmd.Flags().StringVar(&opts.find, "find", "", "print the winning entry for T-G-I")
	cmd.Flags().BoolVar(&opts.noFamilies, "no-families", false, "skip the family index")
	return cmd
}

func runCatalog(cmd *cobra.Command, root *rootOptions, opts *catalogOptions) error {
	lru, err := root.cache()
	if err != nil {
		return err
	}
	buildOpts := []catalog.Option{
		catalog.WithInstallation(opts.installation),
		catalog.WithPlugins(opts.plugins...),
		catalog.WithWorkers(opts.workers),
		catalog.WithLogger(root.logger),
		catalog.WithCache(lru),
		catalog.WithFamilyIndex(!opts.noFamilies),
		catalog.WithProgress(func(ev dbpf.ProgressEvent) {
			if ev.Stage != dbpf.StageParsing {
				root.logger.Info("catalog", "stage", ev.Stage.String())
			}
		}),
	}

	var c *catalog.Catalog
	if opts.cachePath != "" {
		c, err = catalog.LoadOrBuild(cmd.Context(), opts.cachePath, buildOpts...)
	} else {
		c, err = catalog.Build(cmd.Context(), buildOpts...)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, w := range c.Warnings() {
		root.logger.Warn("skipped", "path", w.Path, "error", w.Err)
	}
	fmt.Fprintf(out, "%d files, %d entries, %d families, %d warnings\n",
		len(c.Files()), c.Len(), len(c.Families()), len(c.Warnings()))

	if opts.find != "" {
		tgi, err := dbpf.ParseTGI(opts.find)
		if err != nil {
			return err
		}
		e, ok := c.Find(tgi.Type, tgi.Group, tgi.Instance)
		if !ok {
			return fmt.Errorf("%s: %w", tgi, dbpf.ErrNotFound)
		}
		fmt.Fprintf(out, "%s %s offset=%d size=%d\n", e.TGI(), e.Archive().Path(), e.Offset(), e.Size())
	}

	if opts.family != "" {
		id, err := strconv.ParseUint(opts.family, 0, 32)
		if err != nil {
			return fmt.Errorf("family: %w", err)
		}
		members, ok := c.Family(uint32(id))
		if !ok {
			return fmt.Errorf("family 0x%08X: %w", id, dbpf.ErrNotFound)
		}
		for _, e := range members {
			fmt.Fprintf(out, "%s %s\n", e.TGI(), e.Archive().Path())
		}
	}
	return nil
}
