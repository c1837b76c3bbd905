// Command cabsd serves the cabs content-addressed blob storage HTTP API.
package main

import (
	"os"

	"github.com/cabshq/cabs/cmd/cabsd/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
