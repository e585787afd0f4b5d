// Command datapack loads JSON documents into data packs and queries them
// from the command line: annotating with the built-in components, listing
// entries, inspecting coverage and extracting records.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
