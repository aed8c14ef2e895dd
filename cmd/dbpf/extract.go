package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/dbpf"
)

func newExtractCmd(root *rootOptions) *cobra.Command {
	var (
		tgiFlag string
		output  string
		raw     bool
	)
	cmd := &cobra.Command{
		Use:   "extract FILE|URL",
		Short: "Write one entry's payload to a file or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tgi, err := dbpf.ParseTGI(tgiFlag)
			if err != nil {
				return err
			}
			a, err := root.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			e, ok := a.FindTGI(tgi.Type, tgi.Group, tgi.Instance)
			if !ok {
				return fmt.Errorf("%s in %s: %w", tgi, args[0], dbpf.ErrNotFound)
			}

			var data []byte
			if raw {
				data, err = e.Raw()
			} else {
				data, err = e.Decompress()
			}
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644) //nolint:gosec // extracted payloads are user files
		},
	}
	cmd.Flags().StringVar(&tgiFlag, "tgi", "", "entry key as T-G-I")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&raw, "raw", false, "write the stored bytes without decompressing")
	_ = cmd.MarkFlagRequired("tgi")
	return cmd
}
