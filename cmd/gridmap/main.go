// Command gridmap maps a nodal field between two non-matching meshes on a
// number of in-process ranks.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
