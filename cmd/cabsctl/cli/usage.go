package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show your current storage usage and quota",
	Long: `Usage reports the caller's total claimed storage against their quota.

Examples:
  cabsctl usage`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
}

func runUsage(_ *cobra.Command, _ []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	info, err := c.Usage(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("User:  %s (%s)\n", info.Username, info.ID)
	if info.Quota > 0 {
		fmt.Printf("Usage: %s / %s\n", info.UsageH, humanize.Bytes(uint64(info.Quota))) //nolint:gosec // G115: quota is server-reported, non-negative
	} else {
		fmt.Printf("Usage: %s (no quota configured)\n", info.UsageH)
	}
	return nil
}
