package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cabshq/cabs/internal/digest"
)

var putIsPublic bool

var putCmd = &cobra.Command{
	Use:   "put <path>",
	Short: "Upload a file as a blob",
	Long: `Put uploads a local file to cabsd as a content-addressed blob.

The digest is computed locally before upload, so a concurrent upload of
identical content is deduplicated server-side. Use --public to make the
blob visible to every user, not just the uploader.

Examples:
  cabsctl put ./report.pdf
  cabsctl put ./shared-dataset.csv --public`,
	Args: cobra.ExactArgs(1),
	RunE: runPut,
}

func init() {
	putCmd.Flags().BoolVar(&putIsPublic, "public", false, "make the blob visible to every user")
	rootCmd.AddCommand(putCmd)
}

func runPut(_ *cobra.Command, args []string) error {
	path := args[0]

	f, err := os.Open(path) //nolint:gosec // G304: path is a user-provided CLI argument
	if err != nil {
		return err
	}
	defer f.Close()

	d, size, err := digest.New().Sum(f)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("rewind %s: %w", path, err)
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	progress, finish := newPutProgress()
	result, err := c.Put(ctx, d, size, putIsPublic, f, progress)
	finish()
	if err != nil {
		return err
	}

	fmt.Println(result.Digest)
	return nil
}
