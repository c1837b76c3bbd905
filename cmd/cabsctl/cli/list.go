package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listLong bool

var listCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List your claimed blobs",
	Long: `Ls lists every blob the caller holds a claim on.

Examples:
  cabsctl ls
  cabsctl ls --long`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "show content length and visibility")
	rootCmd.AddCommand(listCmd)
}

func runList(_ *cobra.Command, _ []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	blobs, err := c.List(ctx)
	if err != nil {
		return err
	}

	if !listLong {
		for _, b := range blobs {
			fmt.Println(b.Digest)
		}
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DIGEST\tSIZE\tPUBLIC")
	for _, b := range blobs {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", b.Digest, humanize.Bytes(uint64(b.ContentLength)), b.IsPublic) //nolint:gosec // G115: content length is server-reported, non-negative
	}
	return tw.Flush()
}
