package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meigma/dbpf"
)

func newInspectCmd(root *rootOptions) *cobra.Command {
	var typeFilter string
	cmd := &cobra.Command{
		Use:   "inspect FILE|URL",
		Short: "Print an archive's header and index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.openArchive(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			q := dbpf.Q()
			if typeFilter != "" {
				t, err := strconv.ParseUint(typeFilter, 0, 32)
				if err != nil {
					return fmt.Errorf("type: %w", err)
				}
				q = q.WithType(uint32(t))
			}

			h := a.Header()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version %d.%d index %d.%d\n", h.Major, h.Minor, h.IndexMajor, h.IndexMinor)
			fmt.Fprintf(out, "created %s modified %s\n", h.CreatedTime().UTC().Format("2006-01-02 15:04:05"), h.ModifiedTime().UTC().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "%d entries\n\n", a.Len())

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TGI\tOFFSET\tSIZE\tFILE SIZE\tCOMPRESSED")
			for _, e := range a.FindAll(q) {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%t\n", e.TGI(), e.Offset(), e.Size(), e.FileSize(), e.Compressed())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&typeFilter, "type", "", "only list entries of this type id")
	return cmd
}
