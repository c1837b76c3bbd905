package cli

import (
	"github.com/spf13/cobra"

	"github.com/cabshq/cabs/core"
)

var rmCmd = &cobra.Command{
	Use:     "rm <digest>",
	Aliases: []string{"delete"},
	Short:   "Remove your claim on a blob",
	Long: `Rm removes the caller's claim on a blob.

The blob's physical content is only deleted once no user holds a claim
on it; until then rm simply frees the caller's quota.

Examples:
  cabsctl rm 2c9c2...f3a`,
	Args: cobra.ExactArgs(1),
	RunE: runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func runRm(_ *cobra.Command, args []string) error {
	d := core.Digest(args[0])

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	return c.Delete(ctx, d)
}
