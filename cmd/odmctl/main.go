// Command odmctl inspects docmap schemas and the collections behind them.
//
// Usage: odmctl [--url URL] [--config FILE] <command> [options]
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
