package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/digest"
)

var getCmd = &cobra.Command{
	Use:   "get <digest> <path>",
	Short: "Download a blob to a local path",
	Long: `Get downloads a blob by its digest from cabsd to a local path.

The downloaded content's digest is re-verified before the command reports
success; a corrupted download is surfaced as an error and the partially
written file is removed.

Examples:
  cabsctl get 2c9c2...f3a ./report.pdf`,
	Args: cobra.ExactArgs(2),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(_ *cobra.Command, args []string) error {
	d := core.Digest(args[0])
	destPath := args[1]

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	progress, finish := newGetProgress()
	rc, _, err := c.Get(ctx, d, progress)
	finish()
	if err != nil {
		return err
	}
	defer rc.Close()

	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	f, err := os.Create(destPath) //nolint:gosec // G304: destPath is user-provided CLI argument
	if err != nil {
		return err
	}
	defer f.Close()

	hasher := digest.New().NewHasher()
	if _, err := io.Copy(f, io.TeeReader(rc, hasher)); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("download %s: %w", d, err)
	}
	if got := hasher.Digest(); got != d {
		os.Remove(destPath)
		return fmt.Errorf("%w: downloaded content hashes to %s, expected %s", core.ErrIntegrity, got, d)
	}
	return nil
}
