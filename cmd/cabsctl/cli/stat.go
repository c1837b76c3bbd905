package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cabshq/cabs/core"
)

var statCmd = &cobra.Command{
	Use:   "stat <digest>",
	Short: "Show a blob's metadata without downloading it",
	Long: `Stat reports a blob's content length and visibility without
transferring its content.

Examples:
  cabsctl stat 2c9c2...f3a`,
	Args: cobra.ExactArgs(1),
	RunE: runStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func runStat(_ *cobra.Command, args []string) error {
	d := core.Digest(args[0])

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	info, err := c.Stat(ctx, d)
	if err != nil {
		return err
	}

	fmt.Printf("Digest:  %s\n", info.Digest)
	fmt.Printf("Size:    %s\n", humanize.Bytes(uint64(info.ContentLength))) //nolint:gosec // G115: content length is server-reported, non-negative
	fmt.Printf("Public:  %t\n", info.IsPublic)
	return nil
}
