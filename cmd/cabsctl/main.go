// Command cabsctl provides a CLI for putting, getting and listing blobs on
// a cabsd server.
package main

import (
	"os"

	"github.com/cabshq/cabs/cmd/cabsctl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
