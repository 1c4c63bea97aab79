// Command stampctl builds unsigned Bitcoin Stamps transactions from the
// command line, using the same data sources as the Vault plugin.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(newOptions()).Execute(); err != nil {
		os.Exit(1)
	}
}
